package files

import (
	"errors"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrNoRows is returned for a file holding a header and nothing else.
var ErrNoRows = errors.New("no data rows")

// ReadFrame loads a whole file into a dataframe with every column typed as
// string, so codes keep their leading zeros.
func ReadFrame(path string) (dataframe.DataFrame, error) {
	r, err := Open(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer r.Close()

	header := r.Header()
	records := [][]string{header}
	rows, err := ReadAll(r)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrNoRows, path)
	}
	for _, row := range rows {
		rec := make([]string, len(header))
		for i, h := range header {
			rec[i] = row[h]
		}
		records = append(records, rec)
	}
	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.HasHeader(true),
	)
	return df, df.Error()
}
