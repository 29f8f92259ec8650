package pdf

import (
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// Cover page geometry, in points.
const (
	coverMargin   = 72.0
	coverFontSize = 12.0
	minFontSize   = 7.0
	lineHeight    = 18.0
)

// CoverWriter renders single-page A4 cover documents.
type CoverWriter struct {
	font string
}

// NewCoverWriter returns a CoverWriter using the core Helvetica font.
func NewCoverWriter() *CoverWriter {
	return &CoverWriter{font: "Helvetica"}
}

// RenderCover writes lines to dest, one per text row. Lines wider than the
// printable area are set in a smaller font instead of wrapping, so each
// "Label: value" pair stays on a single extractable row.
func (w *CoverWriter) RenderCover(ctx context.Context, lines []string, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetMargins(coverMargin, coverMargin, coverMargin)
	doc.SetAutoPageBreak(false, coverMargin)
	doc.AddPage()

	pageWidth, _ := doc.GetPageSize()
	usable := pageWidth - 2*coverMargin
	translate := doc.UnicodeTranslatorFromDescriptor("")

	for _, line := range lines {
		text := translate(line)
		size := coverFontSize
		doc.SetFont(w.font, "", size)
		for size > minFontSize && doc.GetStringWidth(text) > usable {
			size -= 0.5
			doc.SetFontSize(size)
		}
		doc.CellFormat(usable, lineHeight, text, "", 1, "L", false, 0, "")
	}

	if err := doc.OutputFileAndClose(dest); err != nil {
		return fmt.Errorf("write cover %s: %w", dest, err)
	}
	return nil
}
