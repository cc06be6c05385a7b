package dims

import (
	"path/filepath"
	"strings"
)

// Dimension declares one lookup table: its key, its display-name column and
// the label used when a code has no row.
type Dimension struct {
	Table string
	Key   string
	Name  string
	Kind  string
	// Extra lists descriptive columns reports read besides Name.
	Extra []string
}

// AdminTypeColumn is the administration-type attribute of the UG dimension.
const AdminTypeColumn = "intipoadm"

// Catalog is the set of known dimension tables.
var Catalog = []Dimension{
	{Table: "dim_esfera", Key: "inesfera", Name: "noesfera", Kind: "Esfera"},
	{Table: "dim_unidade_orcamentaria", Key: "couo", Name: "nouo", Kind: "UO"},
	{Table: "dim_funcao", Key: "cofuncao", Name: "nofuncao", Kind: "Função"},
	{Table: "dim_subfuncao", Key: "cosubfuncao", Name: "nosubfuncao", Kind: "Subfunção"},
	{Table: "dim_programa", Key: "coprograma", Name: "noprograma", Kind: "Programa"},
	{Table: "dim_projeto", Key: "coprojeto", Name: "noprojeto", Kind: "Ação"},
	{Table: "dim_subtitulo", Key: "cosubtitulo", Name: "nosubtitulo", Kind: "Subtítulo"},
	{Table: "dim_fonte", Key: "cofonte", Name: "nofonte", Kind: "Fonte"},
	{Table: "dim_natureza", Key: "conatureza", Name: "nonatureza", Kind: "Natureza"},
	{Table: "dim_categoria_economica", Key: "incategoria", Name: "nocategoria", Kind: "Categoria"},
	{Table: "dim_grupo_despesa", Key: "cogrupo", Name: "nogrupo", Kind: "Grupo"},
	{Table: "dim_modalidade", Key: "comodalidade", Name: "nomodalidade", Kind: "Modalidade"},
	{Table: "dim_elemento", Key: "coelemento", Name: "noelemento", Kind: "Elemento"},
	{Table: "dim_classe_orcamentaria", Key: "coclasseorc", Name: "noclasseorc", Kind: "Classificação"},
	{Table: "dim_categoria_receita", Key: "cocategoriareceita", Name: "nocategoriareceita", Kind: "Categoria"},
	{Table: "dim_origem_receita", Key: "cofontereceita", Name: "nofontereceita", Kind: "Origem"},
	{Table: "dim_especie_receita", Key: "cosubfontereceita", Name: "nosubfontereceita", Kind: "Espécie"},
	{Table: "dim_rubrica_receita", Key: "corubrica", Name: "norubrica", Kind: "Rubrica"},
	{Table: "dim_alinea_receita", Key: "coalinea", Name: "noalinea", Kind: "Alínea"},
	{Table: "dim_conta_contabil", Key: "cocontacontabil", Name: "nocontacontabil", Kind: "Conta"},
	{Table: "dim_unidade_gestora", Key: "coug", Name: "noug", Kind: "UG", Extra: []string{AdminTypeColumn, "cogestao"}},
	{Table: "dim_gestao", Key: "cogestao", Name: "nogestao", Kind: "Gestão"},
	{Table: "dim_evento", Key: "coevento", Name: "noevento", Kind: "Evento"},
	{Table: "dim_tipo_administracao", Key: AdminTypeColumn, Name: "notipoadm", Kind: "Tipo de Administração"},
}

// ByTable finds a catalog entry by table name.
func ByTable(table string) (Dimension, bool) {
	for _, d := range Catalog {
		if d.Table == table {
			return d, true
		}
	}
	return Dimension{}, false
}

// ByKey finds the dimension whose key is column.
func ByKey(column string) (Dimension, bool) {
	for _, d := range Catalog {
		if d.Key == column {
			return d, true
		}
	}
	return Dimension{}, false
}

// ForFile matches a file name ("dim_funcao.csv", "funcao.xlsx") to a catalog
// entry.
func ForFile(path string) (Dimension, bool) {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	base = strings.ReplaceAll(base, "-", "_")
	for _, d := range Catalog {
		if base == d.Table || base == strings.TrimPrefix(d.Table, "dim_") {
			return d, true
		}
	}
	return Dimension{}, false
}

// TableFor derives a table name for a file outside the catalog.
func TableFor(path string) string {
	if d, ok := ForFile(path); ok {
		return d.Table
	}
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "sem_nome"
	}
	if !strings.HasPrefix(name, "dim_") {
		name = "dim_" + name
	}
	return name
}
