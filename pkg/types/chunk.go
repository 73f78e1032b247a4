package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ChunkKind describes what a chunk covers within its file.
type ChunkKind string

const (
	ChunkFunction ChunkKind = "function"
	ChunkMethod   ChunkKind = "method"
	ChunkTypeDecl ChunkKind = "type"
	ChunkClass    ChunkKind = "class"
	ChunkDecl     ChunkKind = "declaration"
	ChunkBlock    ChunkKind = "block"
)

// CodeChunk is one independently embeddable piece of a source file.
// Chunks are created by a chunker and never mutated afterwards.
type CodeChunk struct {
	// ID is the vector-store primary key. See ChunkID.
	ID string `json:"id"`

	Content       string `json:"content"`
	ContextBefore string `json:"context_before,omitempty"`

	FilePath     string `json:"file_path"`     // absolute
	RelativePath string `json:"relative_path"` // slash-separated, relative to the repository root
	Language     string `json:"language"`

	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Kind      ChunkKind `json:"kind,omitempty"`
	Name      string    `json:"name,omitempty"`

	TokenCount int `json:"token_count,omitempty"`
}

// ChunkID derives the stable identifier of a chunk from its file path, its
// line span and the fingerprint of the file content it was cut from. Re-chunking
// identical content yields identical IDs, so re-upserts overwrite instead of
// duplicating; any content change yields fresh IDs.
func ChunkID(relativePath string, startLine, endLine int, fileFingerprint string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d-%d:%s", relativePath, startLine, endLine, fileFingerprint)))
	return hex.EncodeToString(sum[:16])
}

// EmbeddingText is the text sent to the embedding provider for this chunk.
func (c *CodeChunk) EmbeddingText() string {
	if c.ContextBefore == "" {
		return c.Content
	}
	return c.ContextBefore + "\n\n" + c.Content
}

// ComputeTokenCount estimates the number of tokens in the chunk
// Uses a simple heuristic: characters / 4
func (c *CodeChunk) ComputeTokenCount() int {
	c.TokenCount = (len(c.Content) + len(c.ContextBefore)) / 4
	return c.TokenCount
}

// Validate checks the fields every chunk must carry before it is embedded.
func (c *CodeChunk) Validate() error {
	if c.ID == "" {
		return ErrInvalidChunkID
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	if c.RelativePath == "" {
		return ErrMissingFilePath
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	return nil
}
