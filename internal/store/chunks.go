package store

import (
	"context"
	"database/sql"
	"unicode/utf8"

	"github.com/Aman-CERP/amankb/internal/chunk"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

const chunkColumns = `id, kb_id, file_id, chunk_index, content, content_len, content_hash, byte_start, byte_end, content_byte_len, deleted_flag, create_time, update_time`

// ReplaceChunks swaps a file's active chunk generation for pieces in one
// transaction: every active chunk of fileID is deactivated and the pieces
// are inserted as active. Readers see either the old or the new
// generation, never a mix or an empty set. It returns the number of
// chunks inserted.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, kbID, fileID int64, pieces []chunk.Piece, actor int64) (int, error) {
	if kbID == 0 || fileID == 0 {
		return 0, kberrors.Validation("kbId and fileId are required to replace chunks")
	}

	now := toMillis(s.now())
	err := s.withTx(ctx, "replace chunks", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE kb_chunk SET deleted_flag = ?, update_user_id = ?, update_time = ?
			WHERE file_id = ? AND deleted_flag = ?`,
			flagDeleted, actor, now, fileID, flagActive); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO kb_chunk (kb_id, file_id, chunk_index, content, content_len, content_hash,
			                      byte_start, byte_end, content_byte_len, deleted_flag,
			                      create_user_id, update_user_id, create_time, update_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for i, p := range pieces {
			hash := p.ContentHash
			if hash == "" {
				hash = chunk.Hash(p.Content)
			}
			if _, err := stmt.ExecContext(ctx,
				kbID, fileID, i, p.Content, utf8.RuneCountInString(p.Content), hash,
				p.ByteStart, p.ByteEnd, len(p.Content), flagActive,
				actor, actor, now, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(pieces), nil
}

// ReplaceChunkTexts replaces a file's chunks from plain strings. Byte
// offsets are stored as 0.
//
// Deprecated: use ReplaceChunks with pieces from chunk.Split.
func (s *SQLiteStore) ReplaceChunkTexts(ctx context.Context, kbID, fileID int64, contents []string, actor int64) (int, error) {
	pieces := make([]chunk.Piece, len(contents))
	for i, c := range contents {
		pieces[i] = chunk.Piece{ChunkIndex: i, Content: c, ContentByteLen: len(c)}
	}
	return s.ReplaceChunks(ctx, kbID, fileID, pieces, actor)
}

// ListActiveChunksByFile returns a file's active chunks in index order.
func (s *SQLiteStore) ListActiveChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error) {
	return s.queryChunks(ctx, "list chunks by file", `
		SELECT `+chunkColumns+` FROM kb_chunk
		WHERE file_id = ? AND deleted_flag = ?
		ORDER BY chunk_index ASC`, fileID, flagActive)
}

// ListActiveChunksByKb returns every active chunk of a library ordered by
// file then index.
func (s *SQLiteStore) ListActiveChunksByKb(ctx context.Context, kbID int64) ([]*Chunk, error) {
	return s.queryChunks(ctx, "list chunks by kb", `
		SELECT `+chunkColumns+` FROM kb_chunk
		WHERE kb_id = ? AND deleted_flag = ?
		ORDER BY file_id ASC, chunk_index ASC`, kbID, flagActive)
}

// CountActiveChunks returns the number of active chunks for a file.
func (s *SQLiteStore) CountActiveChunks(ctx context.Context, fileID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kb_chunk WHERE file_id = ? AND deleted_flag = ?`, fileID, flagActive).Scan(&n)
	if err != nil {
		return 0, kberrors.Database("count chunks", err)
	}
	return n, nil
}

func (s *SQLiteStore) queryChunks(ctx context.Context, op, query string, args ...any) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kberrors.Database(op, err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var (
			c                      Chunk
			flag                   int
			createTime, updateTime int64
		)
		if err := rows.Scan(&c.ID, &c.KbID, &c.FileID, &c.ChunkIndex, &c.Content, &c.ContentLen,
			&c.ContentHash, &c.ByteStart, &c.ByteEnd, &c.ContentByteLen, &flag,
			&createTime, &updateTime); err != nil {
			return nil, kberrors.Database(op, err)
		}
		c.Active = flag == flagActive
		c.CreateTime = fromMillis(createTime)
		c.UpdateTime = fromMillis(updateTime)
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, kberrors.Database(op, err)
	}
	return chunks, nil
}
