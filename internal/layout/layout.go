package layout

import (
	"sort"
	"strings"
)

// Fragment is a single positioned piece of text as reported by the PDF
// extractor. Y grows upward (PDF coordinate space), so reading order is
// descending Y then ascending X.
type Fragment struct {
	Text     string
	Page     int
	X        float64
	Y        float64
	FontSize float64
}

// Line is a run of fragments that share (approximately) the same baseline.
type Line struct {
	Text            string
	Page            int
	LineNumber      int
	ParagraphNumber int
	YTop            float64
	YBottom         float64
	FontSize        float64
}

// Paragraph is a run of lines separated by no more than a paragraph gap.
type Paragraph struct {
	Text            string
	Page            int
	ParagraphNumber int
	Lines           []Line
}

const (
	// Fraction of the font size two fragments may differ vertically and
	// still sit on the same line.
	lineGapFactor = 0.15
	// Fallback line gap in text-space units when the font size is unknown.
	fallbackLineGap = 2.0
	// A gap between line tops larger than this fraction of the font size
	// starts a new paragraph.
	paragraphGapFactor = 1.5
	fallbackFontSize   = 12.0
)

// Reconstruct groups raw positioned fragments into lines and paragraphs,
// page by page. The result is ordered by page, then by reading order within
// the page. Paragraph numbers are 1-based per page. Pages with no fragments
// contribute nothing.
func Reconstruct(fragments []Fragment, numPages int) []Paragraph {
	var paragraphs []Paragraph
	for page := 1; page <= numPages; page++ {
		lines := buildLines(pageFragments(fragments, page), page)
		paragraphs = append(paragraphs, buildParagraphs(lines, page)...)
	}
	return paragraphs
}

func pageFragments(fragments []Fragment, page int) []Fragment {
	var out []Fragment
	for _, f := range fragments {
		if f.Page == page {
			out = append(out, f)
		}
	}
	// Top to bottom, then left to right.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y > out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func buildLines(fragments []Fragment, page int) []Line {
	var lines []Line
	var current []Fragment
	lastY := 0.0
	haveLast := false

	closeLine := func() {
		if len(current) == 0 {
			return
		}
		texts := make([]string, len(current))
		yTop, yBottom := current[0].Y, current[0].Y
		for i, f := range current {
			texts[i] = f.Text
			if f.Y > yTop {
				yTop = f.Y
			}
			if f.Y < yBottom {
				yBottom = f.Y
			}
		}
		lines = append(lines, Line{
			Text:       strings.Join(texts, " "),
			Page:       page,
			LineNumber: len(lines) + 1,
			YTop:       yTop,
			YBottom:    yBottom,
			FontSize:   current[0].FontSize,
		})
	}

	for _, frag := range fragments {
		// Adaptive threshold: small vertical jitter relative to the font
		// size still counts as the same line.
		threshold := fallbackLineGap
		if frag.FontSize > 0 {
			threshold = frag.FontSize * lineGapFactor
		}
		if !haveLast || abs(frag.Y-lastY) <= threshold {
			current = append(current, frag)
		} else {
			closeLine()
			current = []Fragment{frag}
		}
		lastY = frag.Y
		haveLast = true
	}
	closeLine()
	return lines
}

func buildParagraphs(lines []Line, page int) []Paragraph {
	var paragraphs []Paragraph
	var current []Line
	lastTop := 0.0
	haveLast := false

	closeParagraph := func() {
		if len(current) == 0 {
			return
		}
		number := len(paragraphs) + 1
		texts := make([]string, len(current))
		for i := range current {
			current[i].ParagraphNumber = number
			texts[i] = current[i].Text
		}
		paragraphs = append(paragraphs, Paragraph{
			Text:            strings.Join(texts, " "),
			Page:            page,
			ParagraphNumber: number,
			Lines:           current,
		})
	}

	for _, line := range lines {
		fontSize := line.FontSize
		if fontSize <= 0 {
			fontSize = fallbackFontSize
		}
		threshold := fontSize * paragraphGapFactor
		if !haveLast || abs(line.YTop-lastTop) <= threshold {
			current = append(current, line)
		} else {
			closeParagraph()
			current = []Line{line}
		}
		lastTop = line.YTop
		haveLast = true
	}
	closeParagraph()
	return paragraphs
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
