package listing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

const pageURL = "https://cti.ufpel.edu.br/siepe/anais/2024/en/cic"

const listingHTML = `<html><body>
<table>
  <tr><th>Apresentador</th><th>Título</th><th>Autores</th><th>Orientador</th><th>PDF</th></tr>
  <tr>
    <td> Ana   Souza </td>
    <td>Secagem de
        grãos</td>
    <td>Ana Souza; Bruno Lima</td>
    <td>Carla Dias</td>
    <td><a href="/siepe/arquivos/2024/EN_01.pdf">PDF</a></td>
  </tr>
  <tr><td>Sem</td><td>Link</td><td>x</td><td>y</td><td>indisponível</td></tr>
  <tr><td>Linha</td><td>curta</td></tr>
  <tr>
    <td>Davi</td><td>Pontes</td><td>Davi</td><td>Eva</td>
    <td><a href="https://cdn.example.org/EN_02.pdf">PDF</a></td>
  </tr>
  <tr><td>Vazio</td><td>Href</td><td>a</td><td>b</td><td><a href=" ">PDF</a></td></tr>
</table>
<table><tr><td>1</td><td>2</td><td>3</td><td>4</td><td><a href="/ignored.pdf">x</a></td></tr></table>
</body></html>`

func TestParseExtractsWellFormedRows(t *testing.T) {
	t.Parallel()

	items, err := Parse([]byte(listingHTML), pageURL)
	require.NoError(t, err)
	require.Equal(t, []rag.WorkItem{
		{
			Presenter: "Ana Souza",
			Title:     "Secagem de grãos",
			Authors:   "Ana Souza; Bruno Lima",
			Advisor:   "Carla Dias",
			Link:      "https://cti.ufpel.edu.br/siepe/arquivos/2024/EN_01.pdf",
		},
		{
			Presenter: "Davi",
			Title:     "Pontes",
			Authors:   "Davi",
			Advisor:   "Eva",
			Link:      "https://cdn.example.org/EN_02.pdf",
		},
	}, items)
}

func TestParseWithoutTable(t *testing.T) {
	t.Parallel()

	items, err := Parse([]byte("<html><body><p>Nenhum trabalho</p></body></html>"), pageURL)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestParseHeaderOnly(t *testing.T) {
	t.Parallel()

	items, err := Parse([]byte("<table><tr><th>a</th></tr></table>"), pageURL)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestParseRejectsBadPageURL(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("<table></table>"), "http://[::1")
	require.Error(t, err)
}
