package files

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Reader streams the rows of a tabular file. Header names are lowercased and
// trimmed; each row maps header name to the cell text.
type Reader interface {
	Header() []string
	Next() (map[string]string, error)
	Close() error
}

// SupportedExtensions lists the readable spreadsheet extensions.
var SupportedExtensions = []string{".csv", ".txt", ".xlsx"}

func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Open picks a reader by file extension.
func Open(path string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return openCSV(path)
	case ".xlsx":
		return openXLSX(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ReadAll drains a reader into memory.
func ReadAll(r Reader) ([]map[string]string, error) {
	var rows []map[string]string
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

func normalizeHeader(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		c = strings.TrimPrefix(c, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return out
}

func toRow(header, cells []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		if i < len(cells) {
			row[h] = strings.TrimSpace(cells[i])
		} else {
			row[h] = ""
		}
	}
	return row
}

type csvReader struct {
	file   *os.File
	r      *csv.Reader
	header []string
}

const sniffSize = 64 * 1024

// openCSV sniffs the encoding (UTF-8, else Windows-1252/ISO-8859-1) and the
// delimiter (; , or tab) from the head of the file.
func openCSV(path string) (*csvReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(f, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		f.Close()
		return nil, err
	}

	var src io.Reader = br
	if !validUTF8Prefix(head) {
		src = charmap.Windows1252.NewDecoder().Reader(br)
	}
	r := csv.NewReader(src)
	r.Comma = sniffDelimiter(head)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file", path)
		}
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	return &csvReader{file: f, r: r, header: normalizeHeader(header)}, nil
}

// validUTF8Prefix tolerates a multi-byte rune cut at the end of the sample.
func validUTF8Prefix(b []byte) bool {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return true
		}
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}

func sniffDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	best, bestCount := ';', 0
	for _, d := range []rune{';', ',', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func (c *csvReader) Header() []string { return c.header }

func (c *csvReader) Next() (map[string]string, error) {
	for {
		rec, err := c.r.Read()
		if err != nil {
			return nil, err
		}
		if blank(rec) {
			continue
		}
		return toRow(c.header, rec), nil
	}
}

func (c *csvReader) Close() error { return c.file.Close() }

type xlsxReader struct {
	file   *excelize.File
	rows   *excelize.Rows
	header []string
}

// openXLSX streams the first sheet.
func openXLSX(path string) (*xlsxReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: no sheets", path)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, err
	}
	x := &xlsxReader{file: f, rows: rows}
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			x.Close()
			return nil, err
		}
		if !blank(cols) {
			x.header = normalizeHeader(cols)
			return x, nil
		}
	}
	x.Close()
	return nil, fmt.Errorf("%s: empty sheet", path)
}

func (x *xlsxReader) Header() []string { return x.header }

func (x *xlsxReader) Next() (map[string]string, error) {
	for x.rows.Next() {
		cols, err := x.rows.Columns()
		if err != nil {
			return nil, err
		}
		if blank(cols) {
			continue
		}
		return toRow(x.header, cols), nil
	}
	if err := x.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (x *xlsxReader) Close() error {
	x.rows.Close()
	return x.file.Close()
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// HashFile returns the hex SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ListSupported returns the readable spreadsheets directly under dir, sorted.
func ListSupported(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && IsSupported(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
