package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaJSON = `{
	"table": "trips",
	"columns": [
		{"name": "tpep_pickup_datetime", "type": "DateTime", "filterable": true, "is_datetime": true},
		{"name": "fare_amount", "type": "Float32", "aggregatable": true, "filterable": true}
	],
	"datetime_column": "tpep_pickup_datetime",
	"supported_aggregates": ["count", "avg"],
	"default_limit": 100,
	"max_limit": 1000
}`

func schemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trips.json"), []byte(testSchemaJSON), 0644))
	return dir
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGrammarCommand(t *testing.T) {
	t.Parallel()
	out, err := runCommand(t, "grammar", "--schema-dir", schemaDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, `TABLE: "trips"`)
	assert.Contains(t, out, "start: select_stmt")
}

func TestGrammarCommand_MissingSchema(t *testing.T) {
	t.Parallel()
	_, err := runCommand(t, "grammar", "--schema-dir", t.TempDir(), "--schema", "nope")
	assert.Error(t, err)
}

func TestValidateCommand_Valid(t *testing.T) {
	t.Parallel()
	out, err := runCommand(t, "validate", "--schema-dir", schemaDir(t), "SELECT count() FROM trips")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
	assert.Contains(t, out, "SELECT count() FROM trips LIMIT 100")
}

func TestValidateCommand_Invalid(t *testing.T) {
	t.Parallel()
	out, err := runCommand(t, "validate", "--schema-dir", schemaDir(t), "DROP TABLE trips")
	require.Error(t, err)
	assert.Contains(t, out, "forbidden keyword: DROP")
}

func TestValidateCommand_JSONFormat(t *testing.T) {
	t.Parallel()
	out, err := runCommand(t, "validate", "--schema-dir", schemaDir(t), "--format", "json", "SELECT count() FROM trips")
	require.NoError(t, err)

	var parsed ValidationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.True(t, parsed.Valid)
	assert.Equal(t, "SELECT count() FROM trips LIMIT 100", parsed.BoundedSQL)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	t.Parallel()
	_, err := runCommand(t, "grammar", "--schema-dir", schemaDir(t), "--format", "xml")
	assert.Error(t, err)
}
