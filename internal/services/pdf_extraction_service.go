package services

import (
	"bytes"
	"fmt"
	"strings"

	"docuchat_go_backend/internal/layout"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// PDFExtractionService reads positioned text out of PDF bytes. It reports
// fragments in document order with their page, coordinates and font size so
// the layout package can rebuild lines and paragraphs.
type PDFExtractionService struct {
	log zerolog.Logger
}

func NewPDFExtractionService(log zerolog.Logger) *PDFExtractionService {
	return &PDFExtractionService{
		log: log.With().Str("service", "PDFExtractionService").Logger(),
	}
}

// ExtractFragments parses the PDF and returns every non-whitespace text
// fragment plus the total page count. Pages that fail to parse are skipped
// with a warning rather than failing the whole document.
func (s *PDFExtractionService) ExtractFragments(data []byte) ([]layout.Fragment, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse PDF: %w", err)
	}

	numPages := reader.NumPage()
	var fragments []layout.Fragment
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			s.log.Warn().Int("page", pageNum).Msg("Skipping unreadable PDF page")
			continue
		}
		for _, text := range page.Content().Text {
			if strings.TrimSpace(text.S) == "" {
				continue
			}
			fragments = append(fragments, layout.Fragment{
				Text:     text.S,
				Page:     pageNum,
				X:        text.X,
				Y:        text.Y,
				FontSize: text.FontSize,
			})
		}
	}
	return fragments, numPages, nil
}
