package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	err := WriteCSV(buf, Dataset{
		Headers: []string{"id", "status"},
		Rows: []map[string]string{
			{"id": "reg-1", "status": "PENDING"},
			{"id": "reg-2"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "id,status\nreg-1,PENDING\nreg-2,\n", buf.String())
}

func TestWriteCSVRequiresHeaders(t *testing.T) {
	require.Error(t, WriteCSV(&bytes.Buffer{}, Dataset{}))
}
