package vectorindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
)

func chunksOf(contents ...string) []*store.Chunk {
	out := make([]*store.Chunk, len(contents))
	for i, c := range contents {
		out[i] = &store.Chunk{ID: int64(i + 1), ChunkIndex: i, Content: c}
	}
	return out
}

func TestGuard_Apply(t *testing.T) {
	tests := []struct {
		name     string
		guard    Guard
		chunks   []*store.Chunk
		wantLen  int
		wantCode string
	}{
		{
			name:    "within limits passes through",
			guard:   Guard{MaxChunks: 3, MaxChars: 100, Strategy: StrategyFail},
			chunks:  chunksOf("aa", "", "cc"),
			wantLen: 3,
		},
		{
			name:     "fail on too many chunks",
			guard:    Guard{MaxChunks: 2, MaxChars: 100, Strategy: StrategyFail},
			chunks:   chunksOf("a", "b", "c"),
			wantCode: kberrors.ErrCodePayloadTooLarge,
		},
		{
			name:    "truncate by chunk count",
			guard:   Guard{MaxChunks: 2, MaxChars: 100, Strategy: StrategyTruncate},
			chunks:  chunksOf("a", "b", "c"),
			wantLen: 2,
		},
		{
			name:    "truncate stops at the first chunk over the char budget",
			guard:   Guard{MaxChunks: 10, MaxChars: 5, Strategy: StrategyTruncate},
			chunks:  chunksOf("abc", "defg", "h"),
			wantLen: 1,
		},
		{
			name:    "truncate skips empty content",
			guard:   Guard{MaxChunks: 2, MaxChars: 100, Strategy: StrategyTruncate},
			chunks:  chunksOf("", "b", "", "d", "e"),
			wantLen: 2,
		},
		{
			name:     "truncate to empty fails",
			guard:    Guard{MaxChunks: 10, MaxChars: 3, Strategy: StrategyTruncate},
			chunks:   chunksOf("abcdef", "g"),
			wantCode: kberrors.ErrCodePayloadTooLarge,
		},
		{
			name:    "chars are counted in runes",
			guard:   Guard{MaxChunks: 10, MaxChars: 4, Strategy: StrategyFail},
			chunks:  chunksOf("知识", "文档"),
			wantLen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.guard.Apply(tt.chunks)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, kberrors.IsCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestGuard_TruncateKeepsOrder(t *testing.T) {
	g := Guard{MaxChunks: 300, MaxChars: 25, Strategy: StrategyTruncate}
	chunks := chunksOf(strings.Repeat("x", 10), "", strings.Repeat("y", 10), strings.Repeat("z", 10))

	got, err := g.Apply(chunks)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyFail, ParseStrategy(" fail "))
	assert.Equal(t, StrategyTruncate, ParseStrategy("TRUNCATE"))
	assert.Equal(t, StrategyTruncate, ParseStrategy(""))
	assert.Equal(t, DefaultMaxChunks, DefaultGuard().MaxChunks)
}
