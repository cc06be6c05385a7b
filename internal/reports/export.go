package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/farxc/orcamento-analytics/internal/format"
)

func cell(c Column, m map[string]float64) string {
	v, ok := m[c.Key]
	if !ok {
		return ""
	}
	if c.Format == FormatPercent {
		return format.Percent(v)
	}
	return format.BRL(v)
}

// WriteCSV writes the flat rows of every section, semicolon separated, with
// Brazilian currency formatting.
func WriteCSV(w io.Writer, r *Report) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write([]string{r.Title, r.Period, "Gerado em " + r.GeneratedAt}); err != nil {
		return err
	}
	for _, sec := range r.AllSections() {
		header := []string{"Seção", "Nível", "Código", "Descrição"}
		for _, c := range sec.Columns {
			header = append(header, c.Label)
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, row := range sec.Rows {
			rec := []string{sec.Title, fmt.Sprint(row.Level + 1), row.Code, row.Name}
			for _, c := range sec.Columns {
				rec = append(rec, cell(c, row.Measures))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	if r.Result != nil {
		rec := []string{"", "", r.Result.Code, r.Result.Name}
		for _, k := range sortedMeasureKeys(r.Result.Measures) {
			rec = append(rec, k+": "+format.BRL(r.Result.Measures[k]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes one sheet per section with numeric cells and indented
// descriptions.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	pctFmt := `0.00"%"`
	pct, err := f.NewStyle(&excelize.Style{CustomNumFmt: &pctFmt})
	if err != nil {
		return err
	}
	indents := map[int]int{}
	indent := func(level int) (int, error) {
		if id, ok := indents[level]; ok {
			return id, nil
		}
		id, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Indent: level}})
		indents[level] = id
		return id, err
	}

	for i, sec := range r.AllSections() {
		sheet := sheetName(sec.Title, i)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		if err := f.SetCellValue(sheet, "A1", fmt.Sprintf("%s - %s", r.Title, r.Period)); err != nil {
			return err
		}
		header := []any{"Código", "Descrição"}
		for _, c := range sec.Columns {
			header = append(header, c.Label)
		}
		if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
			return err
		}
		last, _ := excelize.CoordinatesToCellName(len(header), 3)
		if err := f.SetCellStyle(sheet, "A3", last, bold); err != nil {
			return err
		}

		for n, row := range sec.Rows {
			line := n + 4
			f.SetCellValue(sheet, fmt.Sprintf("A%d", line), row.Code)
			f.SetCellValue(sheet, fmt.Sprintf("B%d", line), row.Name)
			style, err := indent(row.Level)
			if err != nil {
				return err
			}
			f.SetCellStyle(sheet, fmt.Sprintf("B%d", line), fmt.Sprintf("B%d", line), style)
			for j, c := range sec.Columns {
				name, _ := excelize.CoordinatesToCellName(j+3, line)
				if err := f.SetCellFloat(sheet, name, format.Round(row.Measures[c.Key], 2), 2, 64); err != nil {
					return err
				}
				st := money
				if c.Format == FormatPercent {
					st = pct
				}
				f.SetCellStyle(sheet, name, name, st)
			}
		}
		f.SetColWidth(sheet, "A", "A", 14)
		f.SetColWidth(sheet, "B", "B", 60)
		if len(sec.Columns) > 0 {
			lastCol, _ := excelize.ColumnNumberToName(len(sec.Columns) + 2)
			f.SetColWidth(sheet, "C", lastCol, 20)
		}
	}
	return f.Write(w)
}

// sheetName fits a section title into Excel's 31-character sheet names.
func sheetName(title string, i int) string {
	name := strings.NewReplacer("/", "-", "\\", "-", "?", "", "*", "", "[", "(", "]", ")", ":", "").Replace(title)
	if name == "" {
		name = fmt.Sprintf("Seção %d", i+1)
	}
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}

func sortedMeasureKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
