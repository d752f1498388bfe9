package main

import (
	"fmt"
	"log/slog"
	"os"

	app "github.com/rocketscienceinc/ultimate-tictactoe/internal"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/config"
)

// main - starts the Ultimate Tic-Tac-Toe room server: websocket relay on socket-port, room lookup API on http-port.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "room server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := config.Path()

	conf, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := newLogger(conf)
	if err != nil {
		return err
	}

	logger.Info("room server configured",
		"config", path,
		"socketPort", conf.SocketPort,
		"httpPort", conf.HTTPPort,
		"redis", conf.Redis.GetRedisAddr(),
		"roomTTL", conf.Room.TTL,
	)

	if err = app.RunApp(logger, conf); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}

	return nil
}

func newLogger(conf *config.Config) (*slog.Logger, error) {
	level, err := conf.Level()
	if err != nil {
		return nil, err
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})), nil
}
