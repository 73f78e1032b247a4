package vectorstore

import (
	"strconv"

	"github.com/dshills/repoindex/pkg/types"
)

// chunkPayload flattens the chunk fields stored beside a vector. Content is
// carried separately by each backend.
func chunkPayload(c types.CodeChunk) map[string]string {
	return map[string]string{
		FieldChunkID:       c.ID,
		FieldRelativePath:  c.RelativePath,
		FieldFilePath:      c.FilePath,
		FieldLanguage:      c.Language,
		FieldStartLine:     strconv.Itoa(c.StartLine),
		FieldEndLine:       strconv.Itoa(c.EndLine),
		FieldKind:          string(c.Kind),
		FieldName:          c.Name,
		FieldContextBefore: c.ContextBefore,
	}
}

// chunkFromPayload rebuilds a chunk from its stored payload.
func chunkFromPayload(content string, p map[string]string) types.CodeChunk {
	start, _ := strconv.Atoi(p[FieldStartLine])
	end, _ := strconv.Atoi(p[FieldEndLine])
	c := types.CodeChunk{
		ID:            p[FieldChunkID],
		Content:       content,
		ContextBefore: p[FieldContextBefore],
		FilePath:      p[FieldFilePath],
		RelativePath:  p[FieldRelativePath],
		Language:      p[FieldLanguage],
		StartLine:     start,
		EndLine:       end,
		Kind:          types.ChunkKind(p[FieldKind]),
		Name:          p[FieldName],
	}
	c.ComputeTokenCount()
	return c
}
