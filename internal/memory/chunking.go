// Package memory implements the retrieval engine: token-budgeted chunking,
// hybrid vector+keyword search, the debounced background indexing queue and
// the orchestrating Engine that ties them to the store and embedding client.
package memory

import (
	"strings"
)

// charsPerToken approximates tokens as chars/4 (conservative, model-agnostic).
const charsPerToken = 4

// TextChunk is a bounded segment of source text with line-range metadata.
// Line numbers are 1-indexed and inclusive, referencing the source text.
type TextChunk struct {
	Content   string
	Hash      string
	StartLine int
	EndLine   int
}

// ChunkOptions controls chunk size and overlap, in estimated tokens.
type ChunkOptions struct {
	MaxTokens     int // default 400
	OverlapTokens int // default 80
}

// ChunkText splits content into overlapping, size-bounded chunks with stable
// content hashes. Empty or whitespace-only input yields no chunks; input that
// fits the budget yields exactly one chunk spanning all lines.
func ChunkText(content string, opts ChunkOptions) []TextChunk {
	tokens := opts.MaxTokens
	if tokens <= 0 {
		tokens = 400
	}
	overlap := opts.OverlapTokens
	if opts.MaxTokens <= 0 && opts.OverlapTokens == 0 {
		overlap = 80
	}

	maxChars := max(32, tokens*charsPerToken)
	overlapChars := overlap * charsPerToken

	if strings.TrimSpace(content) == "" {
		return nil
	}

	if len(content) <= maxChars {
		return []TextChunk{{
			Content:   strings.TrimSpace(content),
			Hash:      ContentHash(content),
			StartLine: 1,
			EndLine:   strings.Count(content, "\n") + 1,
		}}
	}

	lines := strings.Split(content, "\n")
	var chunks []TextChunk

	var currentLines []string
	currentChars := 0
	startLine := 1

	flush := func(endLine int) {
		chunkContent := strings.TrimSpace(strings.Join(currentLines, "\n"))
		if chunkContent != "" {
			chunks = append(chunks, TextChunk{
				Content:   chunkContent,
				Hash:      ContentHash(chunkContent),
				StartLine: startLine,
				EndLine:   endLine,
			})
		}
	}

	for i, line := range lines {
		lineChars := len(line) + 1 // newline

		if currentChars+lineChars > maxChars && len(currentLines) > 0 {
			flush(startLine + len(currentLines) - 1)

			// Seed the next chunk with a suffix of the flushed lines that
			// fits the overlap budget.
			overlapLines := tailWithinBudget(currentLines, overlapChars)
			currentLines = overlapLines
			currentChars = len(strings.Join(overlapLines, "\n"))
			startLine = i + 1 - len(overlapLines)
		}

		if len(line) > maxChars {
			// Oversized single lines are split at word boundaries; every
			// part keeps the original line number.
			for _, part := range splitLongLine(line, maxChars) {
				if currentChars+len(part) > maxChars && len(currentLines) > 0 {
					flush(i + 1)
					currentLines = nil
					currentChars = 0
					startLine = i + 1
				}
				currentLines = append(currentLines, part)
				currentChars += len(part) + 1
			}
		} else {
			currentLines = append(currentLines, line)
			currentChars += lineChars
		}
	}

	if len(currentLines) > 0 {
		flush(startLine + len(currentLines) - 1)
	}

	return chunks
}

// tailWithinBudget returns the longest suffix of lines whose total size fits
// the overlap budget, walking backward from the end. At least one line is
// returned when the budget is positive.
func tailWithinBudget(lines []string, overlapChars int) []string {
	if len(lines) == 0 || overlapChars <= 0 {
		return nil
	}

	chars := 0
	i := len(lines)
	for i > 0 {
		lineChars := len(lines[i-1]) + 1
		if chars+lineChars > overlapChars && i < len(lines) {
			break
		}
		chars += lineChars
		i--
	}
	return lines[i:]
}

// splitLongLine splits a line longer than maxChars at the last whitespace
// boundary within the limit, forcing a split at maxChars when none exists.
func splitLongLine(line string, maxChars int) []string {
	var parts []string

	remaining := line
	for len(remaining) > maxChars {
		splitIndex := strings.LastIndex(remaining[:maxChars+1], " ")
		if splitIndex <= 0 {
			splitIndex = maxChars
		}
		parts = append(parts, strings.TrimSpace(remaining[:splitIndex]))
		remaining = strings.TrimSpace(remaining[splitIndex:])
	}
	if remaining != "" {
		parts = append(parts, remaining)
	}
	return parts
}

// MergeSmallChunks concatenates consecutive under-sized chunks until each
// merged chunk reaches minChars, recomputing the hash and line range. The
// final pending chunk is emitted even when still under the threshold, so
// total content coverage is preserved.
func MergeSmallChunks(chunks []TextChunk, minChars int) []TextChunk {
	if len(chunks) <= 1 {
		return chunks
	}

	var result []TextChunk
	var pending *TextChunk

	for _, chunk := range chunks {
		if pending == nil {
			if len(chunk.Content) < minChars {
				c := chunk
				pending = &c
			} else {
				result = append(result, chunk)
			}
			continue
		}

		merged := TextChunk{
			Content:   pending.Content + "\n\n" + chunk.Content,
			StartLine: pending.StartLine,
			EndLine:   chunk.EndLine,
		}
		merged.Hash = ContentHash(merged.Content)

		if len(merged.Content) < minChars {
			pending = &merged
		} else {
			result = append(result, merged)
			pending = nil
		}
	}

	if pending != nil {
		result = append(result, *pending)
	}
	return result
}
