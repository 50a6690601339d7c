package textproc

import (
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text recursively on the first separator that occurs in it, then merges the
// pieces back into chunks of at most ChunkSize runes. Consecutive chunks share up to Overlap
// runes.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

type SplitterOption func(*Splitter)

func WithChunkSize(size int) SplitterOption {
	return func(s *Splitter) {
		s.chunkSize = size
	}
}

func WithOverlap(overlap int) SplitterOption {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

// WithSeparators replaces the separator list. Splitting on runes is always the last resort.
func WithSeparators(seps ...string) SplitterOption {
	return func(s *Splitter) {
		s.separators = append(seps[:len(seps):len(seps)], "")
	}
}

func NewSplitter(opts ...SplitterOption) (*Splitter, error) {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultOverlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, goerr.New("chunk size must be positive", goerr.V("chunk_size", s.chunkSize))
	}
	if s.overlap < 0 || s.overlap >= s.chunkSize {
		return nil, goerr.New("overlap must be in [0, chunk size)",
			goerr.V("overlap", s.overlap), goerr.V("chunk_size", s.chunkSize))
	}
	return s, nil
}

// Split returns the chunks of text. Chunks are trimmed and never empty.
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, c := range seps {
		if c == "" || strings.Contains(text, c) {
			sep = c
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks, fitting []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= s.chunkSize {
			fitting = append(fitting, p)
			continue
		}

		if len(fitting) > 0 {
			chunks = append(chunks, s.merge(fitting, sep)...)
			fitting = nil
		}
		chunks = append(chunks, s.split(p, rest)...)
	}
	if len(fitting) > 0 {
		chunks = append(chunks, s.merge(fitting, sep)...)
	}

	return chunks
}

func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var chunks, current []string
	total := 0

	joined := func(n int) int {
		if len(current) > 0 {
			return total + sepLen + n
		}
		return total + n
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)

		if len(current) > 0 && joined(n) > s.chunkSize {
			chunks = appendChunk(chunks, strings.Join(current, sep))

			for len(current) > 0 && (total > s.overlap || joined(n) > s.chunkSize) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}

		total = joined(n)
		current = append(current, p)
	}

	if len(current) > 0 {
		chunks = appendChunk(chunks, strings.Join(current, sep))
	}
	return chunks
}

func appendChunk(chunks []string, chunk string) []string {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return chunks
	}
	return append(chunks, chunk)
}
