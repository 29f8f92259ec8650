package crawl

// Entry is a code with its human-readable name.
type Entry struct {
	Code string
	Name string
}

// DefaultYears are the annals editions crawled when a request names none.
var DefaultYears = []string{"2015", "2016", "2017", "2018", "2019", "2020", "2021", "2022", "2023", "2024"}

// Categories is the full knowledge-area catalog, in crawl order.
var Categories = []Entry{
	{Code: "ca", Name: "Ciências Agrárias"},
	{Code: "cb", Name: "Ciências Biológicas"},
	{Code: "ce", Name: "Ciências Exatas e da Terra"},
	{Code: "ch", Name: "Ciências Humanas"},
	{Code: "cs", Name: "Ciências da Saúde"},
	{Code: "sa", Name: "Ciências Sociais Aplicadas"},
	{Code: "en", Name: "Engenharias"},
	{Code: "la", Name: "Linguística, Letras e Artes"},
	{Code: "md", Name: "Multidisciplinar"},
	{Code: "G1", Name: "Diversidade no Ensino Superior"},
	{Code: "G2", Name: "Tecnologias Educacionais na Educação Superior"},
	{Code: "G3", Name: "Projetos e Programas Institucionais"},
	{Code: "G4", Name: "Monitorias"},
	{Code: "G5", Name: "Relato de experiência na Graduação"},
}

// Events is the full event catalog, in crawl order.
var Events = []Entry{
	{Code: "ceg", Name: "Congresso de Ensino de Graduação"},
	{Code: "cic", Name: "Congresso de Iniciação Científica"},
	{Code: "cit", Name: "Congresso de Inovação Tecnológica"},
	{Code: "enpos", Name: "Encontro de Pós Graduação"},
}

// resolve maps codes to catalog entries. Unknown codes name themselves; an
// empty selection yields the whole catalog.
func resolve(catalog []Entry, codes []string) []Entry {
	if len(codes) == 0 {
		return append([]Entry(nil), catalog...)
	}
	out := make([]Entry, 0, len(codes))
	for _, code := range codes {
		out = append(out, lookup(catalog, code))
	}
	return out
}

func lookup(catalog []Entry, code string) Entry {
	for _, e := range catalog {
		if e.Code == code {
			return e
		}
	}
	return Entry{Code: code, Name: code}
}
