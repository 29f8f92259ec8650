package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

func TestExtractAllFields(t *testing.T) {
	t.Parallel()

	text := "Apresentador(a): Ana Souza\n" +
		"Título: Sensores de baixo custo\n" +
		"Autores: Ana Souza; Bruno Lima\n" +
		"Orientador(a): Carla Dias\n" +
		"Evento: Congresso de Iniciação Científica\n" +
		"Área: Engenharias\n" +
		"Ano: 2023\n" +
		"Link para PDF: https://cti.ufpel.edu.br/siepe/arquivos/2023/EN_01.pdf\n" +
		"\nResumo do trabalho..."

	m := Extract(text)
	require.Equal(t, map[string]string{
		rag.FieldPresenter: "Ana Souza",
		rag.FieldTitle:     "Sensores de baixo custo",
		rag.FieldAuthors:   "Ana Souza; Bruno Lima",
		rag.FieldAdvisor:   "Carla Dias",
		rag.FieldEvent:     "Congresso de Iniciação Científica",
		rag.FieldArea:      "Engenharias",
		rag.FieldYear:      "2023",
		rag.FieldLink:      "https://cti.ufpel.edu.br/siepe/arquivos/2023/EN_01.pdf",
	}, m.Map())
}

func TestExtractIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	m := Extract("TITULO:   Teste  \nárea: Monitorias\nAUTORES: Fulano")
	title, _ := m.Get(rag.FieldTitle)
	area, _ := m.Get(rag.FieldArea)
	authors, _ := m.Get(rag.FieldAuthors)
	require.Equal(t, "Teste", title)
	require.Equal(t, "Monitorias", area)
	require.Equal(t, "Fulano", authors)
}

func TestExtractOmitsMissingAndMalformed(t *testing.T) {
	t.Parallel()

	m := Extract("Ano: 20\nLink para PDF: ftp://example.com/a.pdf\nTítulo:\nEvento: CIC")
	_, ok := m.Get(rag.FieldYear)
	require.False(t, ok, "year needs four digits")
	_, ok = m.Get(rag.FieldLink)
	require.False(t, ok, "link needs http(s)")
	_, ok = m.Get(rag.FieldTitle)
	require.False(t, ok, "blank value is omitted")
	require.Equal(t, 1, m.Len())

	require.Zero(t, Extract("").Len())
}

func TestExtractAreaNeedsWordStart(t *testing.T) {
	t.Parallel()

	_, ok := Extract("Subárea: Robótica").Get(rag.FieldArea)
	require.False(t, ok)
}

func TestCoverRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []map[string]string{
		{
			rag.FieldPresenter: "João",
			rag.FieldTitle:     "Teste",
			rag.FieldAuthors:   "João; Maria",
			rag.FieldAdvisor:   "Prof. X",
			rag.FieldEvent:     "Encontro de Pós Graduação",
			rag.FieldArea:      "Ciências da Saúde",
			rag.FieldYear:      "2019",
			rag.FieldLink:      "http://example.com/x.pdf",
		},
		{rag.FieldTitle: "Só título", rag.FieldYear: "2020"},
		{},
	}
	for _, fields := range cases {
		in := rag.NewMetadata(fields)
		out := Extract(CoverText(in))
		require.Equal(t, in.Map(), out.Map())
	}
}

func TestForItem(t *testing.T) {
	t.Parallel()

	item := rag.WorkItem{Presenter: "P", Title: "T", Authors: "A", Advisor: "O", Link: "https://x/y.pdf"}
	target := rag.PageTarget{Year: "2024", CategoryCode: "en", CategoryName: "Engenharias", EventCode: "cic", EventName: "Congresso de Iniciação Científica"}

	lines := CoverLines(ForItem(item, target))
	require.Equal(t, []string{
		"Apresentador(a): P",
		"Título: T",
		"Autores: A",
		"Orientador(a): O",
		"Evento: Congresso de Iniciação Científica",
		"Área: Engenharias",
		"Ano: 2024",
		"Link para PDF: https://x/y.pdf",
	}, lines)
}
