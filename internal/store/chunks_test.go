package store

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/chunk"
)

func TestReplaceChunks_PersistsPieces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib, f, _ := seedFile(t, s, ModeTextOS)

	text := strings.Repeat("知识库 chunk ", 300)
	pieces := chunk.Split(text, 1000, 120)

	n, err := s.ReplaceChunks(ctx, lib.ID, f.ID, pieces, 1)
	require.NoError(t, err)
	assert.Equal(t, len(pieces), n)

	chunks, err := s.ListActiveChunksByFile(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, chunks, len(pieces))
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, pieces[i].Content, c.Content)
		assert.Equal(t, pieces[i].ByteStart, c.ByteStart)
		assert.Equal(t, pieces[i].ByteEnd, c.ByteEnd)
		assert.Equal(t, len(pieces[i].Content), c.ContentByteLen)
		assert.Equal(t, len([]rune(pieces[i].Content)), c.ContentLen)
		assert.Equal(t, pieces[i].ContentHash, c.ContentHash)
		assert.True(t, c.Active)
	}
}

func TestReplaceChunks_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib, f, _ := seedFile(t, s, ModeTextOS)
	text := strings.Repeat("The same document text. ", 200)

	// When: chunking and replacing twice over unchanged text
	_, err := s.ReplaceChunks(ctx, lib.ID, f.ID, chunk.Split(text, 1000, 120), 1)
	require.NoError(t, err)
	first, err := s.ListActiveChunksByFile(ctx, f.ID)
	require.NoError(t, err)

	_, err = s.ReplaceChunks(ctx, lib.ID, f.ID, chunk.Split(text, 1000, 120), 1)
	require.NoError(t, err)
	second, err := s.ListActiveChunksByFile(ctx, f.ID)
	require.NoError(t, err)

	// Then: exactly one generation is active and it matches the first
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].ContentHash, second[i].ContentHash)
		assert.Equal(t, first[i].ByteStart, second[i].ByteStart)
		assert.Equal(t, first[i].ByteEnd, second[i].ByteEnd)
		assert.NotEqual(t, first[i].ID, second[i].ID, "a new generation is inserted")
	}

	count, err := s.CountActiveChunks(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, len(first), count)
}

func TestReplaceChunks_ComputesMissingHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib, f, _ := seedFile(t, s, ModeTextOS)

	_, err := s.ReplaceChunks(ctx, lib.ID, f.ID, []chunk.Piece{{Content: "no hash given"}}, 1)
	require.NoError(t, err)

	chunks, err := s.ListActiveChunksByFile(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, chunk.Hash("no hash given"), chunks[0].ContentHash)
}

func TestReplaceChunkTexts_Legacy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib, f, _ := seedFile(t, s, ModeTextOS)

	_, err := s.ReplaceChunkTexts(ctx, lib.ID, f.ID, []string{"første", "second"}, 1)
	require.NoError(t, err)

	chunks, err := s.ListActiveChunksByFile(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ByteStart)
	assert.Equal(t, 0, chunks[0].ByteEnd)
	assert.Equal(t, len("første"), chunks[0].ContentByteLen)
	assert.Equal(t, 6, chunks[0].ContentLen)
}

func TestReplaceChunks_RequiresIDs(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReplaceChunks(context.Background(), 0, 1, nil, 1)
	assert.Error(t, err)
}

func TestListActiveChunksByKb_SpansFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib, f1, _ := seedFile(t, s, ModeTextOS)
	f2 := &File{KbID: lib.ID, FileName: "b.txt", StoragePath: "kb/b.txt"}
	require.NoError(t, s.CreateFile(ctx, f2))

	_, err := s.ReplaceChunkTexts(ctx, lib.ID, f1.ID, []string{"a0", "a1"}, 1)
	require.NoError(t, err)
	_, err = s.ReplaceChunkTexts(ctx, lib.ID, f2.ID, []string{"b0"}, 1)
	require.NoError(t, err)

	chunks, err := s.ListActiveChunksByKb(ctx, lib.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a0", "a1", "b0"}, []string{chunks[0].Content, chunks[1].Content, chunks[2].Content})
}

func TestReplaceChunks_ReadersNeverSeeMixedGeneration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib, f, _ := seedFile(t, s, ModeTextOS)

	genA := []string{"A", "A", "A", "A"}
	genB := []string{"B", "B", "B", "B", "B", "B"}
	_, err := s.ReplaceChunkTexts(ctx, lib.ID, f.ID, genA, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			gen := genA
			if i%2 == 0 {
				gen = genB
			}
			_, _ = s.ReplaceChunkTexts(ctx, lib.ID, f.ID, gen, 1)
		}
	}()

	for i := 0; i < 50; i++ {
		chunks, err := s.ListActiveChunksByFile(ctx, f.ID)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		first := chunks[0].Content
		for _, c := range chunks {
			assert.Equal(t, first, c.Content, "mixed generation observed")
		}
		if first == "A" {
			assert.Len(t, chunks, len(genA))
		} else {
			assert.Len(t, chunks, len(genB))
		}
	}
	wg.Wait()
}
