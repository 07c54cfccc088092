package main

import (
	"io"
	"testing"

	"github.com/jason-s-yu/neonmarble/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunLocalFinishes(t *testing.T) {
	for _, seed := range []int64{1, 2, 3} {
		err := runLocal(quietLogger(), localOptions{seed: seed, width: 390, height: 844, maxTurns: 30})
		require.NoError(t, err, "seed %d", seed)
	}
}

func TestJoinRequiresCode(t *testing.T) {
	app := makeapp(config.Config{})
	app.Writer = io.Discard
	err := app.Run([]string{"marble", "join", "--url", "ws://127.0.0.1:1/ws"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--code")
}

func TestAppHasCommands(t *testing.T) {
	app := makeapp(config.Config{})
	for _, name := range []string{"local", "host", "join"} {
		assert.NotNil(t, app.Command(name), name)
	}
}
