package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siepe-rag/internal/metadata"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

func TestCoverMergeAndRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	cover := filepath.Join(dir, "cover.pdf")
	body := filepath.Join(dir, "body.pdf")
	merged := filepath.Join(dir, "merged.pdf")

	writer := NewCoverWriter()
	require.NoError(t, writer.RenderCover(ctx, []string{"Título: Teste", "Ano: 2020"}, cover))
	require.NoError(t, writer.RenderCover(ctx, []string{"Resumo do trabalho"}, body))

	asm := NewAssembler()
	n, err := asm.PageCount(ctx, cover)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, asm.Merge(ctx, merged, cover, body))
	n, err = asm.PageCount(ctx, merged)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	doc, err := NewReader().Open(merged)
	require.NoError(t, err)
	defer doc.Close()
	require.Equal(t, 2, doc.NumPages())

	first, err := doc.PageText(0)
	require.NoError(t, err)
	require.Equal(t, "Título: Teste\nAno: 2020", first)

	second, err := doc.PageText(1)
	require.NoError(t, err)
	require.Contains(t, second, "Resumo")

	_, err = doc.PageText(2)
	require.Error(t, err)
}

func TestPageCountRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("<html>not a pdf</html>"), 0o600))

	_, err := NewAssembler().PageCount(context.Background(), path)
	require.Error(t, err)

	_, err = NewReader().Open(path)
	require.Error(t, err)
}

func TestMergeNeedsInputs(t *testing.T) {
	t.Parallel()

	err := NewAssembler().Merge(context.Background(), filepath.Join(t.TempDir(), "out.pdf"))
	require.Error(t, err)
}

func TestCoverRoundTripKeepsEveryField(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	cover := filepath.Join(dir, "cover.pdf")
	body := filepath.Join(dir, "body.pdf")
	merged := filepath.Join(dir, "merged.pdf")

	want := metadata.ForItem(rag.WorkItem{
		Presenter: "João Silva",
		Title:     "Análise de solos ácidos",
		Authors:   "João Silva; Maria Souza",
		Advisor:   "Carla Pereira",
		Link:      "https://cti.ufpel.edu.br/siepe/arquivos/2024/CA_01234.pdf",
	}, rag.PageTarget{
		Year:         "2024",
		CategoryName: "Ciências Agrárias",
		EventName:    "Congresso de Iniciação Científica",
	})
	require.Equal(t, 8, want.Len())

	writer := NewCoverWriter()
	require.NoError(t, writer.RenderCover(ctx, metadata.CoverLines(want), cover))
	require.NoError(t, writer.RenderCover(ctx, []string{"Introdução", "Os solos ácidos limitam a produção."}, body))
	require.NoError(t, NewAssembler().Merge(ctx, merged, cover, body))

	doc, err := NewReader().Open(merged)
	require.NoError(t, err)
	defer doc.Close()

	first, err := doc.PageText(0)
	require.NoError(t, err)
	require.Equal(t, metadata.CoverText(want), first)
	require.Equal(t, want.Map(), metadata.Extract(first).Map())
}

func TestTextLinesGroupsByBaseline(t *testing.T) {
	t.Parallel()

	runs := []lpdf.Text{
		{S: "T", X: 72, Y: 700, FontSize: 12},
		{S: "í", X: 72, Y: 700, FontSize: 12},
		{S: "t", X: 72, Y: 700, FontSize: 12},
		{S: "\n", X: 72, Y: 700, FontSize: 12},
		{S: "fim", X: 72, Y: 100, FontSize: 12},
		{S: "de", X: 72, Y: 682.4, FontSize: 12},
		{S: "x", X: 200, Y: 682, FontSize: 12},
		{S: "meio", X: 72, Y: 400, FontSize: 12},
	}
	require.Equal(t, []string{"Tít", "de x", "meio", "fim"}, textLines(runs))
	require.Empty(t, textLines(nil))
}
