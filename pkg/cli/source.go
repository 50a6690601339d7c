package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/adapter"
	"github.com/thairag/thairag/pkg/textproc"
	"github.com/thairag/thairag/pkg/usecase/ingest"
	"github.com/urfave/cli/v3"
)

func sourceCommand() *cli.Command {
	return &cli.Command{
		Name:  "source",
		Usage: "Manage indexed documents",
		Commands: []*cli.Command{
			sourceAddCommand(),
			sourceListCommand(),
			sourceDeleteCommand(),
		},
	}
}

// newIngester connects the vector store and the embedder. Storage is created only when a
// document is read from a bucket.
func (cfg *config) newIngester(ctx context.Context, needStorage bool, opts ...ingest.Option) (*ingest.Ingester, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := cfg.newStandaloneEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	if needStorage {
		storage, err := cfg.newStorage(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ingest.WithStorage(storage))
	}

	x, err := ingest.New(repo, embedder, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create ingester")
	}
	return x, nil
}

func sourceAddCommand() *cli.Command {
	var (
		cfg           config
		effectiveDate string
		manifestPath  string
		chunkSize     int64
		chunkOverlap  int64
		batchSize     int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "effective-date",
			Aliases:     []string{"e"},
			Usage:       "Effective date of the documents (YYYY-MM-DD). Today when omitted.",
			Destination: &effectiveDate,
		},
		&cli.StringFlag{
			Name:        "manifest",
			Aliases:     []string{"m"},
			Usage:       "YAML file listing documents with their effective dates",
			Destination: &manifestPath,
		},
		&cli.IntFlag{
			Name:        "chunk-size",
			Usage:       "Maximum characters of a chunk",
			Value:       textproc.DefaultChunkSize,
			Sources:     cli.EnvVars("THAIRAG_CHUNK_SIZE"),
			Destination: &chunkSize,
		},
		&cli.IntFlag{
			Name:        "chunk-overlap",
			Usage:       "Characters shared by consecutive chunks",
			Value:       textproc.DefaultOverlap,
			Sources:     cli.EnvVars("THAIRAG_CHUNK_OVERLAP"),
			Destination: &chunkOverlap,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Usage:       "Number of chunks written per request",
			Value:       ingest.DefaultBatchSize,
			Destination: &batchSize,
		},
	}

	return &cli.Command{
		Name:      "add",
		Usage:     "Index PDF or text documents",
		ArgsUsage: "<path>...",
		Flags: commandFlags(
			flags,
			globalFlags(&cfg),
			llmFlags(&cfg),
			embeddingFlags(&cfg),
			vectorFlags(&cfg),
			cacheFlags(&cfg),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(ctx)

			var docs []ingest.Document
			if manifestPath != "" {
				m, err := ingest.LoadManifest(manifestPath)
				if err != nil {
					return err
				}
				docs = append(docs, m.Documents...)
			}
			for _, path := range c.Args().Slice() {
				docs = append(docs, ingest.Document{Path: path, EffectiveDate: effectiveDate})
			}
			if len(docs) == 0 {
				return goerr.New("at least one path or --manifest is required")
			}

			needStorage := false
			for _, d := range docs {
				if adapter.IsGCSURL(d.Path) {
					needStorage = true
				}
			}

			splitter, err := textproc.NewSplitter(
				textproc.WithChunkSize(int(chunkSize)),
				textproc.WithOverlap(int(chunkOverlap)),
			)
			if err != nil {
				return goerr.Wrap(err, "invalid chunk settings")
			}

			x, err := cfg.newIngester(ctx, needStorage,
				ingest.WithSplitter(splitter),
				ingest.WithBatchSize(int(batchSize)),
			)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, d := range docs {
				result, err := x.AddDocument(ctx, d.Path, d.EffectiveDate)
				if err != nil {
					return goerr.Wrap(err, "failed to add document", goerr.V("path", d.Path))
				}

				if result.AlreadyIndexed {
					fmt.Fprintf(w, "%s\talready indexed\n", result.Source)
					continue
				}
				fmt.Fprintf(w, "%s\t%d pages\t%d chunks\t%d skipped\teffective %s\n",
					result.Source, result.Pages, result.Chunks, result.Skipped, result.EffectiveDate)
			}
			return nil
		},
	}
}

func sourceListCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "list",
		Usage: "List indexed documents",
		Flags: commandFlags(
			globalFlags(&cfg),
			vectorFlags(&cfg),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			sources, err := repo.ListSources(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list sources")
			}

			if len(sources) == 0 {
				fmt.Fprintln(c.Root().Writer, "No documents indexed")
				return nil
			}
			for _, s := range sources {
				n, err := repo.CountChunks(ctx, s)
				if err != nil {
					return goerr.Wrap(err, "failed to count chunks", goerr.V("source", s))
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%d chunks\n", s, n)
			}
			return nil
		},
	}
}

func sourceDeleteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "delete",
		Usage:     "Remove documents from the index",
		ArgsUsage: "<path>...",
		Flags: commandFlags(
			globalFlags(&cfg),
			vectorFlags(&cfg),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(ctx)

			paths := c.Args().Slice()
			if len(paths) == 0 {
				return goerr.New("at least one path is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			for _, path := range paths {
				source := ingest.SourceName(path)
				if err := repo.DeleteSource(ctx, source); err != nil {
					return goerr.Wrap(err, "failed to delete source", goerr.V("source", source))
				}
				fmt.Fprintf(c.Root().Writer, "%s\tdeleted\n", source)
			}
			return nil
		},
	}
}
