package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/tool"
	"github.com/thairag/thairag/pkg/tool/retrieve"
	"github.com/thairag/thairag/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg         config
		historyFile string
	)
	registry := tool.New(retrieve.New())

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "File keeping the input history of the prompt",
			Value:       defaultHistoryFile(),
			Sources:     cli.EnvVars("THAIRAG_HISTORY_FILE"),
			Destination: &historyFile,
		},
	}

	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions interactively in the terminal",
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
			session := manager.Open(ctx)
			defer func() { _ = manager.Close(ctx, session.ID()) }()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize prompt")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Chat session %s started. Type 'exit' to quit.\n", session.ID())

			for ctx.Err() == nil {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				query := strings.TrimSpace(line)
				if query == "exit" || query == "quit" {
					break
				}
				if query == "" {
					continue
				}

				if err := runTurn(ctx, w, session, query); err != nil {
					fmt.Fprintf(w, "\n[error] %s\n", err.Error())
				}
			}

			fmt.Fprintf(w, "\nChat session completed\n")
			return nil
		},
	}
}

// runTurn streams one answer to w. A spinner runs until the first fragment arrives.
func runTurn(ctx context.Context, w io.Writer, session *chat.Session, query string) error {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = " thinking..."
	sp.Start()
	spinning := true
	stop := func() {
		if spinning {
			sp.Stop()
			spinning = false
		}
	}
	defer stop()

	var origin model.Origin
	for fragment, err := range session.Stream(ctx, query) {
		stop()
		if err != nil {
			return err
		}
		origin = fragment.Origin
		fmt.Fprint(w, fragment.Text)
	}
	stop()
	fmt.Fprintln(w)

	if origin == model.OriginRAG {
		printCitations(w, session.Citations())
	}
	return nil
}

func printCitations(w io.Writer, citations model.CitationMap) {
	if len(citations) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSources: %s\n", citations)
}

func defaultHistoryFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".thairag_history")
}
