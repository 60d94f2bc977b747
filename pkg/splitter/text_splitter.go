package splitter

import (
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter  textsplitter.TextSplitter
	chunkSize int
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	if chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts, chunkSize: chunkSize}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Clip returns the leading chunk of text, cut on the splitter's separators
// where possible so prompts do not end mid-sentence.
func (ts *TextSplitter) Clip(text string) string {
	if utf8.RuneCountInString(text) <= ts.chunkSize {
		return text
	}
	chunks, err := ts.splitter.SplitText(text)
	if err == nil && len(chunks) > 0 && utf8.RuneCountInString(chunks[0]) <= ts.chunkSize {
		return chunks[0]
	}
	return string([]rune(text)[:ts.chunkSize])
}
