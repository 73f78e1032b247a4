package chunker

import (
	"strings"

	"github.com/dshills/repoindex/pkg/types"
)

// LineChunker splits content into windows of whole lines bounded by an
// estimated token budget, repeating a few lines between windows. It handles
// any language and is the registry's fallback.
type LineChunker struct {
	maxTokens    int
	overlapLines int
}

// NewLineChunker creates a LineChunker. Non-positive arguments select the
// package defaults.
func NewLineChunker(maxTokens, overlapLines int) *LineChunker {
	if maxTokens <= 0 {
		maxTokens = MaxTokensPerChunk
	}
	if overlapLines < 0 {
		overlapLines = DefaultOverlapLines
	}
	return &LineChunker{maxTokens: maxTokens, overlapLines: overlapLines}
}

// ChunkCode implements Chunker. Blank content yields no chunks.
func (c *LineChunker) ChunkCode(content, path, relativePath, language string) ([]types.CodeChunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	lines := splitLines(content)
	f := newFileInfo(content, path, relativePath, language, "")
	return c.chunkRange(lines, 1, len(lines), types.ChunkBlock, "", f), nil
}

// chunkRange windows lines [first, last] (1-based, inclusive). Windows that
// are entirely blank are dropped.
func (c *LineChunker) chunkRange(lines []string, first, last int, kind types.ChunkKind, name string, f fileInfo) []types.CodeChunk {
	var chunks []types.CodeChunk
	lastStart, lastEnd := 0, 0

	start := first
	for start <= last {
		end := start
		tokens := EstimateTokenCount(lines[start-1]) + 1
		for end+1 <= last {
			t := EstimateTokenCount(lines[end]) + 1
			if tokens+t > c.maxTokens {
				break
			}
			tokens += t
			end++
		}

		s, e := trimBlank(lines, start, end)
		// Trimming can collapse neighbouring windows onto the same span.
		if s <= e && (s != lastStart || e != lastEnd) {
			chunks = append(chunks, f.newChunk(lines, s, e, kind, name))
			lastStart, lastEnd = s, e
		}

		if end >= last {
			break
		}
		next := end + 1 - c.overlapLines
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// trimBlank narrows [start, end] to exclude leading and trailing blank lines.
// It returns start > end when the whole range is blank.
func trimBlank(lines []string, start, end int) (int, int) {
	for start <= end && strings.TrimSpace(lines[start-1]) == "" {
		start++
	}
	for end >= start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return start, end
}
