package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Mapping("/data/dims/ug.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveMapping("/data/dims/ug.csv", Mapping{Table: "dim_ug", Key: "coug", ContentHash: "abc", RowCount: 3}))

	m, ok, err := s.Mapping("/elsewhere/ug.csv")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dim_ug", m.Table)
	assert.False(t, m.LastLoad.IsZero())

	reopened, err := Open(s.Dir())
	require.NoError(t, err)
	all, err := reopened.Mappings()
	require.NoError(t, err)
	assert.Contains(t, all, "ug.csv")
}

func TestClassify(t *testing.T) {
	m := Mapping{ContentHash: "h1"}
	assert.Equal(t, StatusNew, Classify(Mapping{}, false, "h1", true))
	assert.Equal(t, StatusUnchanged, Classify(m, true, "h1", true))
	assert.Equal(t, StatusModified, Classify(m, true, "h2", true))
	assert.Equal(t, StatusTableDeleted, Classify(m, true, "h1", false))
}

func TestHistoryNewestFirst(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	base := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e, err := s.AppendHistory(HistoryEntry{Timestamp: base.Add(time.Duration(i) * time.Hour), Table: "t", Action: ActionLoad, Rows: int64(i)})
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
	}

	entries, err := s.History(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.EqualValues(t, 2, entries[0].Rows)
	assert.EqualValues(t, 1, entries[1].Rows)
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendHistory(HistoryEntry{Table: "t", Action: ActionLoad})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := s.History(0)
	require.NoError(t, err)
	assert.Len(t, entries, 20)

	leftovers, _ := filepath.Glob(filepath.Join(s.Dir(), "*.tmp"))
	assert.Empty(t, leftovers)
}

func TestCorruptFileIsReported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryFile), []byte("{not json"), 0o600))
	s, err := Open(dir)
	require.NoError(t, err)

	_, err = s.History(0)
	assert.Error(t, err)
}
