// Package chunk cleans extracted document text and splits it into
// byte-addressed, overlapping pieces.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
)

// Window defaults, in bytes of UTF-8 encoded text.
const (
	DefaultSize    = 1000
	DefaultOverlap = 120
)

// MinTextLen is the minimum cleaned length, in characters, of a document
// worth indexing. Shorter text usually means a scanned PDF without OCR,
// an empty file, or a corrupt one.
const MinTextLen = 20

// Piece is one window of cleaned text.
// ByteStart and ByteEnd are offsets into the cleaned text; ByteEnd is
// exclusive and Content == text[ByteStart:ByteEnd].
type Piece struct {
	ChunkIndex     int    `json:"chunkIndex"`
	Content        string `json:"content"`
	ByteStart      int    `json:"byteStart"`
	ByteEnd        int    `json:"byteEnd"`
	ContentByteLen int    `json:"contentByteLen"`
	ContentHash    string `json:"contentHash"`
}

// Hash returns the hex SHA-256 of content's UTF-8 bytes.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
