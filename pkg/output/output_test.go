package output

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/photostream/cli/pkg/config"
)

func capture(t *testing.T, format string) *bytes.Buffer {
	t.Helper()
	require.NoError(t, config.Init(filepath.Join(t.TempDir(), "config.toml")))
	config.Set("output.format", format)

	color.NoColor = true
	var buf bytes.Buffer
	SetWriter(&buf)
	t.Cleanup(func() { SetWriter(nil) })
	return &buf
}

func TestGetOutputFormat(t *testing.T) {
	capture(t, "table")
	assert.Equal(t, FormatTable, GetOutputFormat())
	config.Set("output.format", "bogus")
	assert.Equal(t, FormatText, GetOutputFormat())
}

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		format  string
		isValid bool
	}{
		{"json", true},
		{"text", true},
		{"table", true},
		{"invalid", false},
	}

	for _, tt := range tests {
		result := ValidateOutputFormat(tt.format)
		if result != tt.isValid {
			t.Errorf("ValidateOutputFormat(%s): got %v, want %v", tt.format, result, tt.isValid)
		}
	}
}

func TestPrintRecordTextIsSorted(t *testing.T) {
	buf := capture(t, "text")

	require.NoError(t, PrintRecord("Photo", map[string]interface{}{"votes": 3, "id": 1, "description": "x"}))
	assert.Equal(t, "Photo:\ndescription: x\nid: 1\nvotes: 3\n", buf.String())
}

func TestPrintRecordJSON(t *testing.T) {
	buf := capture(t, "json")

	require.NoError(t, PrintRecord("", map[string]interface{}{"id": 1}))
	assert.JSONEq(t, `{"id":1}`, buf.String())
}

func TestPrintListTable(t *testing.T) {
	buf := capture(t, "table")

	require.NoError(t, PrintList("", nil, []string{"ID", "VOTES"}, [][]string{{"1", "10"}, {"22", "3"}}))
	assert.Equal(t, "ID  VOTES\n1   10\n22  3\n", buf.String())
}

func TestPrintListJSONUsesData(t *testing.T) {
	buf := capture(t, "json")

	data := []map[string]int{{"id": 1}}
	require.NoError(t, PrintList("Photos", data, []string{"ID"}, [][]string{{"1"}}))
	assert.JSONEq(t, `[{"id":1}]`, buf.String())
}

func TestMessages(t *testing.T) {
	buf := capture(t, "text")

	PrintSuccess("done %d", 1)
	PrintError("failed")
	PrintWarning("careful")
	PrintInfo("note")
	assert.Equal(t, "done 1\nError: failed\nWarning: careful\nnote\n", buf.String())
}

func TestFormatAsJSON(t *testing.T) {
	s, err := FormatAsJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, s)

	pretty, err := FormatAsPrettyJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", pretty)
}
