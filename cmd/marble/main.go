// cmd/marble/main.go is a headless marble client: a hot-seat simulation or a bot
// that plays online through the relay.
package main

import (
	"errors"
	"os"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/jason-s-yu/neonmarble/internal/config"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	if err := config.Load("."); err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if err := makeapp(config.Get()).Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func makeapp(cfg config.Config) *cli.App {
	app := cli.NewApp()
	app.Name = "marble"
	app.Usage = "Play neon marble without a screen"

	mapFlags := []cli.Flag{
		cli.Int64Flag{Name: "seed", Value: time.Now().UnixNano(), Usage: "Seed for map generation and bot aim"},
		cli.IntFlag{Name: "width", Value: 390, Usage: "Viewport width the map is generated for"},
		cli.IntFlag{Name: "height", Value: 844, Usage: "Viewport height the map is generated for"},
		cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
	}
	netFlags := append([]cli.Flag{
		cli.StringFlag{Name: "url", Value: cfg.Client.URL, Usage: "Relay websocket URL"},
		cli.StringFlag{Name: "name", Value: petname.Generate(2, "-"), Usage: "Player name shown to the opponent"},
		cli.IntFlag{Name: "snapshot-every", Value: cfg.Client.SnapshotEvery, Usage: "Ticks between host snapshots"},
	}, mapFlags...)

	app.Commands = []cli.Command{
		{
			Name:  "local",
			Usage: "Two bots play hot-seat on one map",
			Flags: append([]cli.Flag{
				cli.IntFlag{Name: "max-turns", Value: 60, Usage: "Stop after this many shots"},
			}, mapFlags...),
			Action: func(c *cli.Context) error {
				logger := newLogger(cfg, c.Bool("debug"))
				return runLocal(logger, localOptions{
					seed:     c.Int64("seed"),
					width:    float64(c.Int("width")),
					height:   float64(c.Int("height")),
					maxTurns: c.Int("max-turns"),
				})
			},
		},
		{
			Name:  "host",
			Usage: "Create a room and play as host",
			Flags: netFlags,
			Action: func(c *cli.Context) error {
				logger := newLogger(cfg, c.Bool("debug"))
				return runOnline(logger, onlineOptionsFrom(c))
			},
		},
		{
			Name:  "join",
			Usage: "Join a room by code and play as guest",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "code", Usage: "Room code; required"},
			}, netFlags...),
			Action: func(c *cli.Context) error {
				if c.String("code") == "" {
					return errors.New("--code is required")
				}
				logger := newLogger(cfg, c.Bool("debug"))
				return runOnline(logger, onlineOptionsFrom(c))
			},
		},
	}
	return app
}

func newLogger(cfg config.Config, debug bool) *logrus.Logger {
	logger := config.NewLogger(cfg.Log)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func onlineOptionsFrom(c *cli.Context) onlineOptions {
	return onlineOptions{
		url:           c.String("url"),
		name:          c.String("name"),
		code:          c.String("code"),
		seed:          c.Int64("seed"),
		width:         float64(c.Int("width")),
		height:        float64(c.Int("height")),
		snapshotEvery: c.Int("snapshot-every"),
	}
}
