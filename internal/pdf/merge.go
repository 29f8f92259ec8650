package pdf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Assembler validates and merges PDF files with pdfcpu.
type Assembler struct {
	conf *model.Configuration
}

// NewAssembler returns an Assembler using pdfcpu's relaxed validation.
func NewAssembler() *Assembler {
	disableConfigDir.Do(func() {
		// Keep pdfcpu from creating a config directory under $HOME.
		model.ConfigPath = "disable"
	})
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Assembler{conf: conf}
}

// PageCount implements rag.PageCounter.
func (a *Assembler) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages %s: %w", path, err)
	}
	return n, nil
}

// Merge implements rag.Merger. Inputs are concatenated in argument order.
func (a *Assembler) Merge(ctx context.Context, out string, inputs ...string) error {
	if len(inputs) == 0 {
		return errors.New("merge: no inputs")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.MergeCreateFile(inputs, out, false, a.conf); err != nil {
		return fmt.Errorf("merge into %s: %w", out, err)
	}
	return nil
}
