package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/tool"
	"github.com/thairag/thairag/pkg/tool/retrieve"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg  config
		topK int64
	)
	retriever := retrieve.New()
	registry := tool.New(retriever)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Number of passages to show. 0 uses retrieve-top-k.",
			Destination: &topK,
		},
	}

	return &cli.Command{
		Name:      "search",
		Usage:     "Show the passages retrieved for a query",
		ArgsUsage: "<query>",
		Flags: commandFlags(
			flags,
			globalFlags(&cfg),
			llmFlags(&cfg),
			embeddingFlags(&cfg),
			vectorFlags(&cfg),
			cacheFlags(&cfg),
			registry.Flags(),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(ctx)

			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			embedder, err := cfg.newStandaloneEmbedder(ctx)
			if err != nil {
				return err
			}
			if err := registry.Init(ctx, &tool.Client{Repo: repo, Embedder: embedder}); err != nil {
				return goerr.Wrap(err, "failed to initialize tools")
			}

			serialized, passages, err := retriever.Retrieve(ctx, query, int(topK))
			if err != nil {
				return goerr.Wrap(err, "failed to search passages", goerr.V("query", query))
			}

			if len(passages) == 0 {
				fmt.Fprintf(c.Root().Writer, "No passages found for %q\n", query)
				return nil
			}
			fmt.Fprintln(c.Root().Writer, serialized)
			return nil
		},
	}
}
