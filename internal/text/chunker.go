package text

import (
	"strings"
)

// Separator joins paragraphs inside a chunk and is the separator clients use
// when reassembling chunk results back into a document.
const Separator = "\n\n"

// Chunk splits text into ordered, size-bounded chunks along blank-line
// paragraph boundaries. Consecutive paragraphs are accumulated greedily;
// a chunk is flushed when appending the next paragraph would push it past
// maxChunkSize characters. A single paragraph longer than maxChunkSize is
// emitted as its own oversized chunk; boundaries never split a paragraph.
//
// The function is pure and deterministic: the same input always produces
// the same chunks, and joining the chunks with Separator reproduces the
// original paragraph sequence.
func Chunk(text string, maxChunkSize int) []string {
	paragraphs := SplitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder

	for _, para := range paragraphs {
		if buf.Len() > 0 && buf.Len()+len(Separator)+len(para) > maxChunkSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString(Separator)
		}
		buf.WriteString(para)
	}

	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// SplitParagraphs splits text on blank-line boundaries, trimming each
// paragraph and dropping empties. Windows line endings are normalized first
// so "\r\n\r\n" counts as a paragraph break.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
