package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// TextExtractor turns raw document bytes into the concatenated text of its pages
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// PDFExtractor extracts plain text page by page using ledongthuc/pdf
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText concatenates the text of every page. A page that cannot be read contributes
// an empty string; only an unreadable document fails.
func (p *PDFExtractor) ExtractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		text.WriteString(pageText(reader, i))
	}

	log.Debug().Int("pages", numPages).Int("chars", text.Len()).Msg("Extracted pdf text")
	return text.String(), nil
}

// pageText reads one page; the pdf library panics on some malformed content streams
func pageText(reader *pdf.Reader, pageNum int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Int("page", pageNum).Interface("panic", r).Msg("Skipping unreadable page")
			text = ""
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}
	pageText, err := page.GetPlainText(nil)
	if err != nil {
		log.Warn().Err(err).Int("page", pageNum).Msg("Skipping page without extractable text")
		return ""
	}
	return pageText
}
