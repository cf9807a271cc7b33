package retrieval

import (
	"fmt"
	"strings"
)

// Default window geometry: 20-line windows advanced by 15 lines, so
// neighbouring chunks share 5 lines.
const (
	DefaultWindowLines = 20
	DefaultStrideLines = 15
)

// File is one document handed to the index.
type File struct {
	ID      string
	Path    string
	Content string
}

// Chunk is an addressable line range of a file. Chunks are immutable and
// regenerated wholesale on every reindex.
type Chunk struct {
	ID        string
	FileID    string
	FilePath  string
	Content   string
	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive
}

// Chunker splits files into overlapping line windows.
type Chunker struct {
	window int
	stride int
}

// NewChunker creates a chunker. Non-positive values fall back to the defaults,
// and a stride larger than the window is clamped to the window.
func NewChunker(window, stride int) *Chunker {
	if window <= 0 {
		window = DefaultWindowLines
	}
	if stride <= 0 {
		stride = DefaultStrideLines
	}
	if stride > window {
		stride = window
	}
	return &Chunker{window: window, stride: stride}
}

// Chunk splits a single file. Empty files produce no chunks.
func (c *Chunker) Chunk(f File) []Chunk {
	if strings.TrimSpace(f.Content) == "" {
		return nil
	}
	lines := strings.Split(f.Content, "\n")
	// A trailing newline does not start another line.
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var chunks []Chunk
	for start := 0; start < len(lines); start += c.stride {
		end := start + c.window
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("%s#%d-%d", f.ID, start+1, end),
			FileID:    f.ID,
			FilePath:  f.Path,
			Content:   strings.Join(lines[start:end], "\n"),
			StartLine: start + 1,
			EndLine:   end,
		})
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// ChunkAll chunks every file in input order.
func (c *Chunker) ChunkAll(files []File) []Chunk {
	var out []Chunk
	for i := range files {
		out = append(out, c.Chunk(files[i])...)
	}
	return out
}

// snippet returns the first few non-blank lines of a chunk.
func snippet(content string, maxLines int) string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == maxLines {
			break
		}
	}
	return strings.Join(kept, "\n")
}
