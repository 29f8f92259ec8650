package pdf

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// Reader opens PDF files for text extraction.
type Reader struct{}

// NewReader returns a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Open implements rag.DocumentReader.
func (r *Reader) Open(path string) (doc rag.Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("open pdf %s: %v", path, rec)
		}
	}()
	f, reader, err := lpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &document{file: f, reader: reader}, nil
}

type document struct {
	file   *os.File
	reader *lpdf.Reader
}

func (d *document) NumPages() int {
	return d.reader.NumPage()
}

// PageText returns the page's text with one line per text row, top to bottom.
// Rows are rebuilt from glyph positions, since the text-matrix grouping of the
// underlying library ignores Td moves and folds a whole page into one row.
func (d *document) PageText(index int) (text string, err error) {
	if index < 0 || index >= d.NumPages() {
		return "", fmt.Errorf("page %d out of range [0,%d)", index, d.NumPages())
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("read page %d: %v", index+1, rec)
		}
	}()
	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return "", nil
	}
	return strings.Join(textLines(page.Content().Text), "\n"), nil
}

// textRow is one visual line: glyphs whose baselines lie within tolerance.
type textRow struct {
	y    float64
	runs lpdf.TextHorizontal
}

// textLines groups glyph runs by baseline and returns non-empty lines from
// the top of the page down. Runs keep stream order within a row when their X
// coordinates tie, which happens for fonts without a Widths array.
func textLines(runs []lpdf.Text) []string {
	var rows []*textRow
	for _, run := range runs {
		if run.S == "\n" || run.S == "" {
			continue
		}
		tol := math.Max(run.FontSize*0.5, 1)
		var row *textRow
		for _, r := range rows {
			if math.Abs(r.y-run.Y) <= tol {
				row = r
				break
			}
		}
		if row == nil {
			row = &textRow{y: run.Y}
			rows = append(rows, row)
		}
		row.runs = append(row.runs, run)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if line := joinRow(row.runs); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (d *document) Close() error {
	return d.file.Close()
}

// joinRow concatenates the runs of one row left to right, inserting a space
// where runs are visibly apart.
func joinRow(runs lpdf.TextHorizontal) string {
	sorted := make([]lpdf.Text, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var b strings.Builder
	for i, run := range sorted {
		if i > 0 {
			prev := sorted[i-1]
			gap := run.X - (prev.X + prev.W)
			if gap > math.Max(prev.FontSize, 1)*0.25 &&
				!strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(run.S, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(run.S)
	}
	return strings.TrimSpace(b.String())
}
