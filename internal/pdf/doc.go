// Package pdf adapts third-party PDF libraries to the document interfaces
// used by ingestion: ledongthuc/pdf reads page text, go-pdf/fpdf renders
// cover pages and pdfcpu validates and merges files.
package pdf
