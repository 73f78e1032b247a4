package chunker

import (
	"sort"
	"strings"

	"github.com/dshills/repoindex/internal/fingerprint"
	"github.com/dshills/repoindex/pkg/types"
)

const (
	// MaxTokensPerChunk is the target maximum token count per chunk
	MaxTokensPerChunk = 512

	// DefaultOverlapLines is how many trailing lines of a window are repeated
	// at the start of the next one when a region is split by lines.
	DefaultOverlapLines = 5

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Chunker turns the content of one file into an ordered list of chunks.
// Implementations must be safe for concurrent use.
type Chunker interface {
	ChunkCode(content, path, relativePath, language string) ([]types.CodeChunk, error)
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}

// splitLines splits content into lines, ignoring the final newline.
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.Split(strings.TrimRight(content, "\n"), "\n")
}

// fileInfo carries the per-file values stamped on every chunk.
type fileInfo struct {
	path         string
	relativePath string
	language     string
	fingerprint  string
	context      string
}

func newFileInfo(content, path, relativePath, language, context string) fileInfo {
	return fileInfo{
		path:         path,
		relativePath: relativePath,
		language:     language,
		fingerprint:  fingerprint.String(content),
		context:      context,
	}
}

// newChunk builds a chunk for lines [start, end] (1-based, inclusive).
func (f fileInfo) newChunk(lines []string, start, end int, kind types.ChunkKind, name string) types.CodeChunk {
	c := types.CodeChunk{
		ID:            types.ChunkID(f.relativePath, start, end, f.fingerprint),
		Content:       strings.Join(lines[start-1:end], "\n"),
		ContextBefore: f.context,
		FilePath:      f.path,
		RelativePath:  f.relativePath,
		Language:      f.language,
		StartLine:     start,
		EndLine:       end,
		Kind:          kind,
		Name:          name,
	}
	c.ComputeTokenCount()
	return c
}

// span is a definition found by a structural chunker.
type span struct {
	start, end int // 1-based, inclusive
	kind       types.ChunkKind
	name       string
	skip       bool // covered but not emitted (imports, package clause)
}

// assemble emits one chunk per span (split by lines when oversized) and
// line-chunks every uncovered region that has non-blank content, so code
// between definitions is still indexed. Overlapping spans keep the outer one.
func assemble(lines []string, spans []span, lc *LineChunker, f fileInfo) []types.CodeChunk {
	spans = dedupSpans(spans)
	covered := make([]bool, len(lines)+1)

	var chunks []types.CodeChunk
	for _, s := range spans {
		if s.start < 1 || s.start > len(lines) {
			continue
		}
		if s.end > len(lines) {
			s.end = len(lines)
		}
		for i := s.start; i <= s.end; i++ {
			covered[i] = true
		}
		if s.skip {
			continue
		}

		text := strings.Join(lines[s.start-1:s.end], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if EstimateTokenCount(text) > lc.maxTokens {
			chunks = append(chunks, lc.chunkRange(lines, s.start, s.end, s.kind, s.name, f)...)
			continue
		}
		chunks = append(chunks, f.newChunk(lines, s.start, s.end, s.kind, s.name))
	}

	for i := 1; i <= len(lines); {
		if covered[i] {
			i++
			continue
		}
		j := i
		for j+1 <= len(lines) && !covered[j+1] {
			j++
		}
		chunks = append(chunks, lc.chunkRange(lines, i, j, types.ChunkBlock, "", f)...)
		i = j + 1
	}

	sort.SliceStable(chunks, func(a, b int) bool {
		if chunks[a].StartLine != chunks[b].StartLine {
			return chunks[a].StartLine < chunks[b].StartLine
		}
		return chunks[a].EndLine < chunks[b].EndLine
	})
	return chunks
}

// dedupSpans drops spans fully contained in an earlier, larger span.
func dedupSpans(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	out := spans[:0]
	lastEnd := 0
	for _, s := range spans {
		if s.start > lastEnd {
			out = append(out, s)
			lastEnd = s.end
		}
	}
	return out
}
