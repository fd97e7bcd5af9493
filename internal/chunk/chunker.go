// Package chunk splits memory notes into indexable evidence chunks.
// Markdown headings and blank lines mark chunk boundaries; oversized
// sections are split at paragraph breaks.
package chunk

import (
	"fmt"
	"strings"

	"github.com/TheMonk2121/rehydrate/internal/store"
)

// DefaultMaxChunkTokens bounds a single chunk. Whole chunks are packed
// into bundles, so chunks stay small enough to mix sources.
const DefaultMaxChunkTokens = 256

// SupportedExtensions lists the file types the chunker handles.
var SupportedExtensions = []string{".md", ".markdown", ".txt"}

// Chunker splits prose files into evidence chunks.
type Chunker struct {
	maxTokens int
}

// NewChunker creates a chunker. maxTokens <= 0 uses the default.
func NewChunker(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	return &Chunker{maxTokens: maxTokens}
}

// block is a heading-or-paragraph unit with its char span.
type block struct {
	text      string
	startChar int
	endChar   int
	heading   bool
}

// ChunkText splits content into chunks with stable IDs and char spans.
// A heading always starts a new chunk; paragraphs accumulate until the
// token limit. Whitespace-only content yields no chunks.
func (c *Chunker) ChunkText(filePath, content string) []*store.EvidenceChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	blocks := splitBlocks(content)

	var chunks []*store.EvidenceChunk
	var current []block
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		start := current[0].startChar
		end := current[len(current)-1].endChar
		text := content[start:end]
		chunks = append(chunks, &store.EvidenceChunk{
			ID:            fmt.Sprintf("%s:%d", filePath, start),
			DocID:         filePath,
			FilePath:      filePath,
			StartChar:     start,
			EndChar:       end,
			Text:          text,
			TokenEstimate: store.EstimateTokens(text),
		})
		current = current[:0]
		currentTokens = 0
	}

	for _, b := range blocks {
		tokens := store.EstimateTokens(b.text)

		// Headings start a fresh chunk so sections stay intact
		if b.heading || (currentTokens > 0 && currentTokens+tokens > c.maxTokens) {
			flush()
		}

		current = append(current, b)
		currentTokens += tokens
	}
	flush()

	return chunks
}

// splitBlocks splits content into heading lines and blank-line-separated
// paragraphs, tracking byte offsets into the original content.
func splitBlocks(content string) []block {
	var blocks []block

	pos := 0
	paraStart := -1

	flushPara := func(end int) {
		if paraStart < 0 {
			return
		}
		text := content[paraStart:end]
		if strings.TrimSpace(text) != "" {
			blocks = append(blocks, block{text: text, startChar: paraStart, endChar: end})
		}
		paraStart = -1
	}

	for pos <= len(content) {
		lineEnd := strings.IndexByte(content[pos:], '\n')
		var next int
		if lineEnd < 0 {
			lineEnd = len(content)
			next = len(content) + 1
		} else {
			lineEnd += pos
			next = lineEnd + 1
		}

		line := content[pos:lineEnd]
		trimmed := strings.TrimSpace(line)

		switch {
		case isHeading(trimmed):
			flushPara(pos)
			blocks = append(blocks, block{text: line, startChar: pos, endChar: lineEnd, heading: true})

		case trimmed == "":
			flushPara(pos)

		default:
			if paraStart < 0 {
				paraStart = pos
			}
		}

		pos = next
	}
	flushPara(len(content))

	return blocks
}

// isHeading reports whether a line is a markdown ATX heading.
func isHeading(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	rest := strings.TrimLeft(line, "#")
	return strings.HasPrefix(rest, " ") && strings.TrimSpace(rest) != ""
}

// Supported reports whether the chunker handles the file extension.
func Supported(ext string) bool {
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
