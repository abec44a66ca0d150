package chunk

import "unicode/utf8"

// Split cuts text into windows of at most size bytes. Each window after
// the first starts overlap bytes before the previous one ended. Window
// edges are moved to rune boundaries so every piece is valid UTF-8 on its
// own, and each step advances by at least one rune even when overlap is
// not smaller than size.
//
// A non-positive size uses DefaultSize; a negative overlap is treated as 0.
func Split(text string, size, overlap int) []Piece {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}

	n := len(text)
	pieces := make([]Piece, 0, n/max(size-overlap, 1)+1)

	start := 0
	for {
		end := min(start+size, n)
		end = floorBoundary(text, end, start)
		if end == start {
			// a single rune wider than the window
			end = ceilBoundary(text, start+1)
		}

		content := text[start:end]
		pieces = append(pieces, Piece{
			ChunkIndex:     len(pieces),
			Content:        content,
			ByteStart:      start,
			ByteEnd:        end,
			ContentByteLen: end - start,
			ContentHash:    Hash(content),
		})

		if end >= n {
			return pieces
		}

		next := ceilBoundary(text, end-overlap)
		if next <= start {
			next = ceilBoundary(text, start+1)
		}
		start = next
	}
}

// floorBoundary moves i back to the nearest rune start, not below lo.
func floorBoundary(s string, i, lo int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > lo && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// ceilBoundary moves i forward to the nearest rune start.
func ceilBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return min(i, len(s))
}
