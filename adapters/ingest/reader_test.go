package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekpowell/cava-rep/domain/core"
)

const testCSV = `participant,condition,eligible,returned,excluded,pretest,posttest,trust_pre,trust_post,intent_pre,intent_post
p1,Control,1,1,0,2.5,3.0,2,3,3,3
p2,Treatment,1,1,0,3.0,4.5,3,5,3,4
p3,Treatment,1,0,0,2.0,2.0,2,2,2,2
`

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeTempCSV(t, testCSV)
	reader := NewDataReader(path, "", DefaultSchema())

	participants, err := reader.Read()
	require.NoError(t, err)
	require.Len(t, participants, 3)

	p1 := participants[0]
	assert.Equal(t, "p1", p1.ID.String())
	assert.Equal(t, "Control", string(p1.Condition))
	assert.True(t, p1.Eligible)
	assert.True(t, p1.Returned)
	assert.False(t, p1.Excluded)
	assert.InDelta(t, 2.5, p1.Pretest, 1e-12)
	assert.InDelta(t, 3.0, p1.Posttest, 1e-12)
	assert.Equal(t, map[string]float64{"trust": 2, "intent": 3}, p1.PreItems)
	assert.Equal(t, map[string]float64{"trust": 3, "intent": 3}, p1.PostItems)

	assert.False(t, participants[2].Returned)
}

func TestReadReverseCodedItems(t *testing.T) {
	path := writeTempCSV(t, testCSV)
	schema := DefaultSchema()
	schema.ReverseCoded = []string{"trust"}
	reader := NewDataReader(path, "", schema)

	participants, err := reader.Read()
	require.NoError(t, err)

	// trust scores reflected on [1,6]: 2 -> 5, 3 -> 4
	assert.InDelta(t, 5.0, participants[0].PreItems["trust"], 1e-12)
	assert.InDelta(t, 4.0, participants[0].PostItems["trust"], 1e-12)
	// intent untouched
	assert.InDelta(t, 3.0, participants[0].PreItems["intent"], 1e-12)
}

func TestReadMissingColumn(t *testing.T) {
	csv := `participant,condition,eligible,returned,pretest,posttest
p1,Control,1,1,2.5,3.0
`
	path := writeTempCSV(t, csv)
	reader := NewDataReader(path, "", DefaultSchema())

	_, err := reader.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMissingColumn))
	assert.Contains(t, err.Error(), "excluded")
}

func TestReadUnpairedItemColumn(t *testing.T) {
	csv := `participant,condition,eligible,returned,excluded,pretest,posttest,trust_pre
p1,Control,1,1,0,2.5,3.0,2
`
	path := writeTempCSV(t, csv)
	reader := NewDataReader(path, "", DefaultSchema())

	_, err := reader.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMissingColumn))
}

func TestReadOutOfRangeItem(t *testing.T) {
	csv := `participant,condition,eligible,returned,excluded,pretest,posttest,trust_pre,trust_post
p1,Control,1,1,0,2.5,3.0,2,9
`
	path := writeTempCSV(t, csv)
	reader := NewDataReader(path, "", DefaultSchema())

	_, err := reader.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOutOfRange))
	assert.Contains(t, err.Error(), "row 2")
}

func TestReadOutOfRangeComposite(t *testing.T) {
	csv := `participant,condition,eligible,returned,excluded,pretest,posttest,trust_pre,trust_post
p1,Control,1,1,0,2.5,7.0,2,3
`
	path := writeTempCSV(t, csv)
	reader := NewDataReader(path, "", DefaultSchema())

	_, err := reader.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOutOfRange))
	assert.Contains(t, err.Error(), "posttest")
	assert.Contains(t, err.Error(), "row 2")
}

func TestReadMalformedScore(t *testing.T) {
	csv := `participant,condition,eligible,returned,excluded,pretest,posttest,trust_pre,trust_post
p1,Control,1,1,0,abc,3.0,2,3
`
	path := writeTempCSV(t, csv)
	reader := NewDataReader(path, "", DefaultSchema())

	_, err := reader.Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pretest")
}

func TestReadMissingFile(t *testing.T) {
	reader := NewDataReader(filepath.Join(t.TempDir(), "absent.csv"), "", DefaultSchema())
	_, err := reader.Read()
	assert.Error(t, err)
}

func TestReadHeaderOnly(t *testing.T) {
	csv := "participant,condition,eligible,returned,excluded,pretest,posttest\n"
	path := writeTempCSV(t, csv)
	reader := NewDataReader(path, "", DefaultSchema())

	_, err := reader.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmptyData))
}

func TestParseFlag(t *testing.T) {
	for _, raw := range []string{"1", "true", "yes", "Y"} {
		v, err := parseFlag(raw)
		require.NoError(t, err, raw)
		assert.True(t, v, raw)
	}
	for _, raw := range []string{"0", "false", "no", ""} {
		v, err := parseFlag(raw)
		require.NoError(t, err, raw)
		assert.False(t, v, raw)
	}
	_, err := parseFlag("maybe")
	assert.Error(t, err)
}
