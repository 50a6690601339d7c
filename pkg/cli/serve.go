package cli

import (
	"context"

	"github.com/thairag/thairag/pkg/server"
	"github.com/thairag/thairag/pkg/tool"
	"github.com/thairag/thairag/pkg/tool/retrieve"
	"github.com/thairag/thairag/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg            config
		addr           string
		turnTimeout    = server.DefaultTurnTimeout
		maxMessageSize int64
	)
	registry := tool.New(retrieve.New())

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("THAIRAG_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "turn-timeout",
			Usage:       "Time limit of one chat turn",
			Value:       server.DefaultTurnTimeout,
			Sources:     cli.EnvVars("THAIRAG_TURN_TIMEOUT"),
			Destination: &turnTimeout,
		},
		&cli.IntFlag{
			Name:        "max-message-size",
			Usage:       "Maximum size of a client message in bytes",
			Value:       server.DefaultMaxMessageSize,
			Sources:     cli.EnvVars("THAIRAG_MAX_MESSAGE_SIZE"),
			Destination: &maxMessageSize,
		},
	}

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve chat sessions over WebSocket",
		Flags: commandFlags(
			flags,
			globalFlags(&cfg),
			llmFlags(&cfg),
			embeddingFlags(&cfg),
			vectorFlags(&cfg),
			cacheFlags(&cfg),
			engineFlags(&cfg),
			registry.Flags(),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(ctx)

			manager, err := cfg.newManager(ctx, registry)
			if err != nil {
				return err
			}

			srv := server.New(manager,
				server.WithTurnTimeout(turnTimeout),
				server.WithMaxMessageSize(maxMessageSize),
			)

			logging.From(ctx).Info("starting thairag server",
				"addr", addr,
				"vector_backend", cfg.vectorBackend,
				"embedding_provider", cfg.embeddingProvider,
			)
			return srv.Run(ctx, addr)
		},
	}
}
