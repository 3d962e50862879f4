package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	ds := Dataset{Headers: []string{"day", "class", "start", "end", "lesson"}}
	ds.Append("Monday", "7A", "08:00", "08:45", "1001")
	ds.Append("Monday", "7A", "08:45", "09:30")
	return ds
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(), "run abc")
	require.NoError(t, err)

	expected := "# run abc\nday,class,start,end,lesson\nMonday,7A,08:00,08:45,1001\nMonday,7A,08:45,09:30,\n"
	assert.Equal(t, expected, string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	ds := sampleDataset()
	for i := 0; i < 80; i++ {
		ds.Append("Tuesday", "7B", "10:00", "10:45", "2001")
	}
	out, err := NewPDFExporter().Render(ds, "Weekly timetable", "status: success")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}
