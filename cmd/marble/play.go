package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jason-s-yu/neonmarble/internal/bot"
	"github.com/jason-s-yu/neonmarble/internal/client"
	"github.com/jason-s-yu/neonmarble/internal/game"
	"github.com/jason-s-yu/neonmarble/internal/mapgen"
	"github.com/jason-s-yu/neonmarble/internal/models"
	"github.com/jason-s-yu/neonmarble/internal/netplay"
	"github.com/jason-s-yu/neonmarble/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	frameRate  = 60
	thinkDelay = 700 * time.Millisecond
	maxTicks   = 100000 // per shot, in case a marble never settles
)

type localOptions struct {
	seed          int64
	width, height float64
	maxTurns      int
}

func logEvents(logger *logrus.Logger) func(game.Event) {
	return func(ev game.Event) {
		entry := logger.WithFields(logrus.Fields{"event": ev.Type, "player": ev.Player})
		switch ev.Type {
		case game.EventShot:
			entry.WithField("power", fmt.Sprintf("%.2f", ev.Power)).Info("shot")
		case game.EventGameOver:
			entry.Infof("player %d wins", ev.Player+1)
		default:
			entry.Debug("match event")
		}
	}
}

// runLocal plays both seats on one match as fast as the physics allows.
func runLocal(logger *logrus.Logger, opts localOptions) error {
	state := mapgen.New(mapgen.DefaultConfig(), opts.seed).Generate(opts.width, opts.height)
	logger.Infof("map %.0fx%.0f with %d obstacles (seed %d)", state.MapWidth, state.MapHeight, len(state.Obstacles), opts.seed)

	match := game.NewMatch(state)
	match.OnEvent = logEvents(logger)
	b := bot.New(opts.seed)

	for turn := 0; turn < opts.maxTurns; turn++ {
		player := match.CurrentPlayer()
		dir, power := b.Shot(match.State(), player)
		if err := match.Shoot(player, dir, power); err != nil {
			return fmt.Errorf("turn %d: %w", turn, err)
		}
		for i := 0; i < maxTicks && match.Phase() == game.PhaseSimulating; i++ {
			match.Tick()
		}
		if match.Phase() == game.PhaseGameOver {
			return nil
		}
	}
	logger.Infof("no winner after %d turns", opts.maxTurns)
	return nil
}

type onlineOptions struct {
	url, name, code string
	seed            int64
	width, height   float64
	snapshotEvery   int
}

// runOnline hosts a room (no code) or joins one, then lets the bot play its seat.
func runOnline(logger *logrus.Logger, opts onlineOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var current atomic.Pointer[netplay.Session]
	gaveUp := make(chan struct{})
	var once sync.Once

	c := client.New(opts.url, logger, client.Handlers{
		OnMessage: func(msg protocol.ServerMessage) {
			if s := current.Load(); s != nil {
				s.Deliver(msg)
			}
		},
		OnStatus: func(st client.Status) {
			s := current.Load()
			switch {
			case st.GaveUp:
				once.Do(func() { close(gaveUp) })
			case st.State == client.StateReconnecting && st.Attempt == 1 && s != nil:
				s.ConnectionLost()
			}
		},
	})
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		return err
	}

	var seat client.Seat
	var err error
	role := models.RoleHost
	if opts.code == "" {
		seat, err = c.CreateRoom(ctx, opts.name)
	} else {
		role = models.RoleGuest
		seat, err = c.JoinRoom(ctx, opts.code, opts.name)
	}
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"room": seat.RoomCode, "player": seat.PlayerIndex}).Infof("seated as %s", role)
	if role.IsHost() {
		fmt.Printf("Room code: %s\n", seat.RoomCode)
	}

	state := mapgen.New(mapgen.DefaultConfig(), opts.seed).Generate(opts.width, opts.height)
	sess := netplay.NewSession(netplay.Config{
		LocalIndex:    seat.PlayerIndex,
		Role:          role,
		SnapshotEvery: opts.snapshotEvery,
	}, game.NewMatch(state), c, logger)
	sess.OnEvent = logEvents(logger)
	defer sess.Stop()
	current.Store(sess)

	if err := c.SetReady(); err != nil {
		return err
	}
	return play(ctx, logger, sess, bot.New(opts.seed+int64(seat.PlayerIndex)), gaveUp)
}

// play runs the frame loop until the match ends or the relay is gone for good.
func play(ctx context.Context, logger *logrus.Logger, sess *netplay.Session, b *bot.Bot, gaveUp <-chan struct{}) error {
	ticker := time.NewTicker(time.Second / frameRate)
	defer ticker.Stop()

	var thinkUntil time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gaveUp:
			return errors.New("lost connection to the relay")
		case now := <-ticker.C:
			sess.Frame()
			view := sess.View()
			if view.GameOver {
				// give the writer a moment to flush the final snapshot
				time.Sleep(200 * time.Millisecond)
				return nil
			}
			if !sess.IsMyTurn() {
				thinkUntil = time.Time{}
				continue
			}
			if thinkUntil.IsZero() {
				thinkUntil = now.Add(thinkDelay)
				continue
			}
			if now.Before(thinkUntil) {
				continue
			}
			thinkUntil = time.Time{}
			dir, power := b.Shot(sess.Match().State(), sess.LocalIndex())
			if err := sess.Shoot(dir, power); err != nil {
				logger.Debugf("shot rejected: %v", err)
			}
		}
	}
}
