package services

import "fmt"

// Chunk is one retrieval unit cut from a page.
type Chunk struct {
	Text string
	Page int
}

// Chunker slices page text into fixed-size overlapping windows. Sizes are
// measured in runes so multi-byte text never splits mid-character.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got overlap=%d size=%d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// SplitPage cuts one page's text into chunks. Consecutive chunks share the
// configured overlap, so concatenating each chunk minus its leading overlap
// reproduces the page text exactly. Empty text yields no chunks.
func (ck *Chunker) SplitPage(text string, page int) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := ck.size - ck.overlap
	var chunks []Chunk
	for start := 0; ; start += step {
		end := start + ck.size
		if end >= len(runes) {
			chunks = append(chunks, Chunk{Text: string(runes[start:]), Page: page})
			break
		}
		chunks = append(chunks, Chunk{Text: string(runes[start:end]), Page: page})
	}
	return chunks
}
