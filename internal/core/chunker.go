package core

import (
	"path/filepath"
	"strings"
)

// defaultChunkSize is the target chunk length in characters.
const defaultChunkSize = 2000

// Chunker splits normalized text into self-contained spans.
type Chunker interface {
	Chunk(content string, filename string) []string
}

// ChunkerRegistry maps file extensions to chunking strategies. The
// registry is populated once at construction; there is no runtime
// discovery. Unknown extensions fall back to the plain paragraph
// chunker.
type ChunkerRegistry struct {
	byExt    map[string]Chunker
	fallback Chunker
}

// NewChunkerRegistry returns a registry with the built-in strategies:
// heading-aware chunking for markdown, definition-aware chunking for
// Python source, paragraph packing for everything else.
func NewChunkerRegistry() *ChunkerRegistry {
	md := &MarkdownChunker{}
	return &ChunkerRegistry{
		byExt: map[string]Chunker{
			".md":       md,
			".markdown": md,
			".py":       &PythonChunker{},
		},
		fallback: &PlainChunker{},
	}
}

// Register binds a strategy to an extension (with leading dot),
// overriding any built-in binding.
func (r *ChunkerRegistry) Register(ext string, c Chunker) {
	r.byExt[strings.ToLower(ext)] = c
}

// Chunk splits content using the strategy registered for the filename's
// extension.
func (r *ChunkerRegistry) Chunk(content string, filename string) []string {
	ext := strings.ToLower(filepath.Ext(filename))
	if c, ok := r.byExt[ext]; ok {
		return c.Chunk(content, filename)
	}
	return r.fallback.Chunk(content, filename)
}

// PlainChunker packs paragraphs into chunks of roughly defaultChunkSize
// characters. Content that already fits is returned as a single chunk.
type PlainChunker struct{}

func (PlainChunker) Chunk(content string, _ string) []string {
	if len(content) <= defaultChunkSize {
		if s := strings.TrimSpace(content); s != "" {
			return []string{s}
		}
		return nil
	}

	var chunks []string
	var current strings.Builder

	for _, para := range strings.Split(content, "\n\n") {
		if current.Len() > 0 && current.Len()+len(para) > defaultChunkSize {
			chunks = appendChunk(chunks, current.String())
			current.Reset()
		}
		// A single oversized paragraph is split hard.
		for len(para) > defaultChunkSize {
			chunks = appendChunk(chunks, para[:defaultChunkSize])
			para = para[defaultChunkSize:]
		}
		current.WriteString(para)
		current.WriteString("\n\n")
	}

	return appendChunk(chunks, current.String())
}

// MarkdownChunker splits on headings, closing the running chunk whenever
// a heading at the same or a shallower level starts. Oversized sections
// are cut at 3000 characters. Files without headings fall back to
// paragraph packing.
type MarkdownChunker struct{}

func (MarkdownChunker) Chunk(content string, filename string) []string {
	var chunks []string
	var current strings.Builder
	currentLevel := 0
	sawHeading := false

	for _, line := range strings.Split(content, "\n") {
		if level := headingLevel(line); level > 0 {
			sawHeading = true
			if current.Len() > 0 && (level <= currentLevel || level == 1) {
				chunks = appendChunk(chunks, current.String())
				current.Reset()
			}
			currentLevel = level
		}
		current.WriteString(line)
		current.WriteString("\n")

		if current.Len() > 3000 {
			chunks = appendChunk(chunks, current.String())
			current.Reset()
			currentLevel = 0
		}
	}
	chunks = appendChunk(chunks, current.String())

	if !sawHeading && len(chunks) <= 1 && len(content) > defaultChunkSize {
		return PlainChunker{}.Chunk(content, filename)
	}
	return chunks
}

// PythonChunker splits Python source at top-level def and class
// definitions. The module header (imports, comments and docstring lines
// before the first definition) is prefixed to every chunk for context,
// and decorator lines travel with the definition below them. Files with
// no top-level definitions fall back to paragraph packing.
type PythonChunker struct{}

func (PythonChunker) Chunk(content string, filename string) []string {
	lines := strings.Split(content, "\n")

	first := -1
	for i, line := range lines {
		if isPythonDef(line) {
			first = i
			break
		}
	}
	if first == -1 {
		return PlainChunker{}.Chunk(content, filename)
	}

	start := first
	for start > 0 && strings.HasPrefix(lines[start-1], "@") {
		start--
	}
	header := strings.TrimSpace(strings.Join(lines[:start], "\n"))

	var chunks []string
	var current []string
	flush := func() {
		body := strings.TrimSpace(strings.Join(current, "\n"))
		if body == "" {
			return
		}
		if header != "" {
			body = header + "\n\n" + body
		}
		chunks = append(chunks, body)
	}

	for _, line := range lines[start:] {
		if isPythonDef(line) && len(current) > 0 {
			// Decorators directly above the definition belong to it.
			cut := len(current)
			for cut > 0 && strings.HasPrefix(current[cut-1], "@") {
				cut--
			}
			carried := append([]string(nil), current[cut:]...)
			current = current[:cut]
			flush()
			current = carried
		}
		current = append(current, line)
	}
	flush()

	return chunks
}

// isPythonDef reports whether a line opens an unindented function or
// class definition. Indented definitions are methods and stay inside
// their enclosing chunk.
func isPythonDef(line string) bool {
	return strings.HasPrefix(line, "def ") ||
		strings.HasPrefix(line, "async def ") ||
		strings.HasPrefix(line, "class ")
}

// headingLevel returns the markdown heading level of a line, or 0.
func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n >= len(line) || line[n] != ' ' {
		return 0
	}
	if strings.TrimSpace(line[n:]) == "" {
		return 0
	}
	return n
}

// ChunkTitle extracts a display title from a chunk: its first heading
// line, or the first non-empty line truncated to 100 characters.
func ChunkTitle(chunk string) string {
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "# ")
		if len(line) > 100 {
			line = line[:100]
		}
		return line
	}
	return ""
}

func appendChunk(chunks []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
