package vectorindex

import (
	"fmt"
	"strings"
	"unicode/utf8"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
)

// Strategy decides what happens when a payload exceeds the guard.
type Strategy string

const (
	// StrategyFail rejects an oversized payload.
	StrategyFail Strategy = "FAIL"
	// StrategyTruncate keeps a leading prefix of chunks that fits.
	StrategyTruncate Strategy = "TRUNCATE"
)

// Guard defaults.
const (
	DefaultMaxChunks = 300
	DefaultMaxChars  = 300_000
)

// ParseStrategy maps configuration text to a Strategy. Anything other than
// FAIL truncates.
func ParseStrategy(s string) Strategy {
	if strings.EqualFold(strings.TrimSpace(s), string(StrategyFail)) {
		return StrategyFail
	}
	return StrategyTruncate
}

// Guard bounds the size of one vector payload.
type Guard struct {
	MaxChunks int
	MaxChars  int
	Strategy  Strategy
}

// DefaultGuard returns the 300 chunk / 300000 character TRUNCATE guard.
func DefaultGuard() Guard {
	return Guard{MaxChunks: DefaultMaxChunks, MaxChars: DefaultMaxChars, Strategy: StrategyTruncate}
}

// PayloadStats sums a chunk list.
type PayloadStats struct {
	Chunks int
	Chars  int
}

// Stats counts chunks and characters.
func Stats(chunks []*store.Chunk) PayloadStats {
	s := PayloadStats{Chunks: len(chunks)}
	for _, c := range chunks {
		s.Chars += utf8.RuneCountInString(c.Content)
	}
	return s
}

// Apply returns the chunks to send. Within limits chunks pass through
// untouched. Over limits FAIL returns a payload error; TRUNCATE keeps
// chunks in order, skipping empty ones, until the next would break a limit.
func (g Guard) Apply(chunks []*store.Chunk) ([]*store.Chunk, error) {
	g = g.withDefaults()
	stats := Stats(chunks)
	if stats.Chunks <= g.MaxChunks && stats.Chars <= g.MaxChars {
		return chunks, nil
	}

	if g.Strategy == StrategyFail {
		return nil, kberrors.PayloadTooLarge(fmt.Sprintf(
			"payload too large, please batch: chunkCount=%d, totalChars=%d", stats.Chunks, stats.Chars))
	}

	kept := make([]*store.Chunk, 0, min(len(chunks), g.MaxChunks))
	acc := 0
	for _, c := range chunks {
		if len(kept) >= g.MaxChunks {
			break
		}
		if c.Content == "" {
			continue
		}
		n := utf8.RuneCountInString(c.Content)
		if acc+n > g.MaxChars {
			break
		}
		kept = append(kept, c)
		acc += n
	}

	if len(kept) == 0 {
		return nil, kberrors.PayloadTooLarge("payload truncated to empty")
	}
	return kept, nil
}

func (g Guard) withDefaults() Guard {
	if g.MaxChunks <= 0 {
		g.MaxChunks = DefaultMaxChunks
	}
	if g.MaxChars <= 0 {
		g.MaxChars = DefaultMaxChars
	}
	if g.Strategy == "" {
		g.Strategy = StrategyTruncate
	}
	return g
}
