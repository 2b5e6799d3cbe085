package examples

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellab/simfarm/pkg/command"
)

const manifestFixture = `[
	{"name": "small-run", "description": "A short single-stage run", "dir": "small"},
	{"name": "no-data", "description": "Manifest entry without payload", "dir": "missing"}
]`

func writeExamplesDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestName), []byte(manifestFixture), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "small"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "small", exampleCommandsName),
		[]byte(`{"first_stage":1,"last_stage":1}`), 0644))
	return dir
}

func TestList(t *testing.T) {
	dir := writeExamplesDir(t)

	list, err := List(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, Example{Name: "small-run", Description: "A short single-stage run", Dir: "small"}, list[0])
}

func TestListMissingManifest(t *testing.T) {
	_, err := List(t.TempDir())
	require.Error(t, err)
}

func TestListMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestName), []byte("not json"), 0644))

	_, err := List(dir)
	require.Error(t, err)
}

func TestCommands(t *testing.T) {
	dir := writeExamplesDir(t)

	cmds, err := Commands(dir, "small-run")
	require.NoError(t, err)
	assert.Equal(t, command.Structured(`{"first_stage":1,"last_stage":1}`), cmds)
}

func TestCommandsUnknownExample(t *testing.T) {
	dir := writeExamplesDir(t)

	_, err := Commands(dir, "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestCommandsMissingPayload(t *testing.T) {
	dir := writeExamplesDir(t)

	_, err := Commands(dir, "no-data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestCommandsInvalidPayload(t *testing.T) {
	dir := writeExamplesDir(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "small", exampleCommandsName),
		[]byte("{broken"), 0644))

	_, err := Commands(dir, "small-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}
