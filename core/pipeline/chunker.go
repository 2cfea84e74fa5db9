package pipeline

import (
	"fmt"
	"strings"
)

// SizeChunker creates a chunker that splits text into overlapping windows of
// roughly chunkSize characters. Instead of cutting blindly at the size limit
// it searches backward from the naive cut point for a paragraph break, then
// for a sentence end, and only falls back to a raw cut when neither exists
// past the halfway mark. Consecutive chunks overlap by overlap characters;
// the final chunk may be shorter. The function is pure and deterministic, so
// re-ingesting identical text produces identical chunk boundaries.
func SizeChunker(chunkSize int, overlap int) ChunkFunc {
	return func(text string) ([]string, error) {
		if chunkSize <= 0 {
			return nil, fmt.Errorf("chunk size must be positive")
		}
		if overlap < 0 || overlap >= chunkSize {
			return nil, fmt.Errorf("overlap must be non-negative and smaller than the chunk size")
		}

		if text == "" {
			return []string{}, nil
		}

		var chunks []string
		start := 0

		for start < len(text) {
			end := start + chunkSize
			if end >= len(text) {
				chunk := strings.TrimSpace(text[start:])
				if chunk != "" {
					chunks = append(chunks, chunk)
				}
				break
			}

			window := text[start:end]

			// Prefer a paragraph break, then a sentence end. Boundaries in the
			// first half of the window are ignored; a mid-sentence raw cut is
			// better than an oversized chunk.
			if lastPara := strings.LastIndex(window, "\n\n"); lastPara > chunkSize/2 {
				end = start + lastPara
			} else {
				lastPeriod := strings.LastIndex(window, ". ")
				if periodNewline := strings.LastIndex(window, ".\n"); periodNewline > lastPeriod {
					lastPeriod = periodNewline
				}
				if lastPeriod > chunkSize/2 {
					end = start + lastPeriod + 1
				}
			}

			chunk := strings.TrimSpace(text[start:end])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}

			// A boundary cut close to the window start combined with a large
			// overlap must still advance the window.
			next := end - overlap
			if next <= start {
				next = end
			}
			start = next
		}

		return chunks, nil
	}
}

// ParagraphChunker creates a chunker that splits on blank lines without a
// size limit. Useful for short, well structured documents.
func ParagraphChunker() ChunkFunc {
	return func(text string) ([]string, error) {
		paragraphs := strings.Split(text, "\n\n")

		var chunks []string
		for _, para := range paragraphs {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			chunks = append(chunks, para)
		}

		return chunks, nil
	}
}
