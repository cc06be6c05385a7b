package types

// ColumnType is the logical type of a declared column; storage dialects map
// it to their own DDL spelling.
type ColumnType string

const (
	Text      ColumnType = "text"
	Integer   ColumnType = "integer"
	BigInt    ColumnType = "bigint"
	Double    ColumnType = "double"
	Timestamp ColumnType = "timestamp"
)

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	// Default is inlined in DDL; columns with a default are not written by the loader.
	Default string
}

const (
	ColExercise       = "coexercicio"
	ColMonth          = "inmes"
	ColUG             = "coug"
	ColContabil       = "cocontacontabil"
	ColAccountCurrent = "cocontacorrente"
	ColCredit         = "vacredito"
	ColDebit          = "vadebito"
	ColNature         = "conatureza"
	ColDocument       = "nudocumento"
	ColPosting        = "nulancamento"
	ColPostingValue   = "valancamento"
	ColDebitCredit    = "indebitocredito"
	ColPostingDate    = "dalancamento"
	ColEvent          = "coevento"
	ColPeriod         = "period"
	ColSignedBalance  = "signed_balance"
	ColLoadedAt       = "data_carga"
)

// Revenue layout (account-current width 17).
const (
	ColRevenueClass    = "coclasseorc"
	ColSource          = "cofonte"
	ColRevenueCategory = "cocategoriareceita"
	ColRevenueOrigin   = "cofontereceita"
	ColRevenueSpecies  = "cosubfontereceita"
	ColRevenueSpec     = "corubrica"
	ColRevenueAlinea   = "coalinea"
)

// Expense layout (account-current width 38 or 40).
const (
	ColSphere       = "inesfera"
	ColSpendingUnit = "couo"
	ColFunction     = "cofuncao"
	ColSubfunction  = "cosubfuncao"
	ColProgram      = "coprograma"
	ColProject      = "coprojeto"
	ColSubtitle     = "cosubtitulo"
	ColCategory     = "incategoria"
	ColGroup        = "cogrupo"
	ColModality     = "comodalidade"
	ColElement      = "coelemento"
	ColSubelement   = "cosubelemento"
)

// RevenueDecoded lists the columns filled from a 17-wide account-current.
var RevenueDecoded = []string{
	ColRevenueClass, ColSource, ColRevenueCategory, ColRevenueOrigin,
	ColRevenueSpecies, ColRevenueSpec, ColRevenueAlinea,
}

// ExpenseDecoded lists the columns filled from a 38/40-wide account-current.
var ExpenseDecoded = []string{
	ColSphere, ColSpendingUnit, ColFunction, ColSubfunction, ColProgram,
	ColProject, ColSubtitle, ColSource, ColNature, ColCategory, ColGroup,
	ColModality, ColElement, ColSubelement,
}

var balanceRaw = []Column{
	{Name: ColExercise, Type: Integer},
	{Name: ColMonth, Type: Integer},
	{Name: ColUG, Type: Text},
	{Name: ColContabil, Type: Text},
	{Name: ColAccountCurrent, Type: Text, Nullable: true},
	{Name: ColCredit, Type: Double},
	{Name: ColDebit, Type: Double},
}

var ledgerRaw = []Column{
	{Name: ColExercise, Type: Integer},
	{Name: ColMonth, Type: Integer},
	{Name: ColUG, Type: Text},
	{Name: ColDocument, Type: Text},
	{Name: ColPosting, Type: Text},
	{Name: ColPostingDate, Type: Text, Nullable: true},
	{Name: ColPostingValue, Type: Double},
	{Name: ColDebitCredit, Type: Text},
	{Name: ColEvent, Type: Text, Nullable: true},
	{Name: ColContabil, Type: Text},
	{Name: ColAccountCurrent, Type: Text, Nullable: true},
}

// requiredInput is the set of input columns whose absence fails a load up front.
var requiredInput = map[FactKind][]string{
	ExpenseBalance: {ColExercise, ColMonth, ColUG, ColContabil, ColAccountCurrent, ColCredit, ColDebit},
	RevenueBalance: {ColExercise, ColMonth, ColUG, ColContabil, ColAccountCurrent, ColCredit, ColDebit},
	ExpenseLedger:  {ColExercise, ColUG, ColDocument, ColPosting, ColPostingValue, ColDebitCredit, ColContabil, ColAccountCurrent},
	RevenueLedger:  {ColExercise, ColUG, ColDocument, ColPosting, ColPostingValue, ColDebitCredit, ColContabil, ColAccountCurrent},
}

// RequiredColumns returns the input columns a file of kind k must carry.
func RequiredColumns(k FactKind) []string {
	return append([]string(nil), requiredInput[k]...)
}

func decodedColumns(names ...[]string) []Column {
	seen := map[string]bool{}
	var cols []Column
	for _, group := range names {
		for _, n := range group {
			if seen[n] {
				continue
			}
			seen[n] = true
			cols = append(cols, Column{Name: n, Type: Text, Nullable: true})
		}
	}
	return cols
}

// Schema returns the declared, ordered column set of the fact table for k:
// raw columns, decoded attributes, period, signed balance (balances only)
// and the load timestamp.
func Schema(k FactKind) []Column {
	var cols []Column
	switch k {
	case ExpenseBalance:
		cols = append(cols, balanceRaw...)
		cols = append(cols, decodedColumns(ExpenseDecoded)...)
	case RevenueBalance:
		cols = append(cols, balanceRaw...)
		cols = append(cols, decodedColumns(RevenueDecoded)...)
	default:
		cols = append(cols, ledgerRaw...)
		cols = append(cols, decodedColumns(RevenueDecoded, ExpenseDecoded)...)
	}
	cols = append(cols, Column{Name: ColPeriod, Type: Text})
	if k.IsBalance() {
		cols = append(cols, Column{Name: ColSignedBalance, Type: Double})
	}
	return append(cols, Column{Name: ColLoadedAt, Type: Timestamp, Nullable: true, Default: "CURRENT_TIMESTAMP"})
}

// InsertColumns returns the schema columns the loader writes, in order.
func InsertColumns(k FactKind) []string {
	var out []string
	for _, c := range Schema(k) {
		if c.Default == "" {
			out = append(out, c.Name)
		}
	}
	return out
}

// HasColumn reports whether the fact table for k declares name.
func HasColumn(k FactKind, name string) bool {
	for _, c := range Schema(k) {
		if c.Name == name {
			return true
		}
	}
	return false
}
