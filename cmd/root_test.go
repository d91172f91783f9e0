package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteConfigToCreatesDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	assert.NoError(t, writeConfigTo(dir))

	data, err := os.ReadFile(filepath.Join(dir, cfgFile))
	assert.NoError(t, err)
	assert.Contains(t, string(data), "backend:")
	assert.Contains(t, string(data), "embedding:")
}

func TestWriteConfigToLeavesExistingConfigAlone(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, cfgFile)
	assert.NoError(t, os.WriteFile(existing, []byte("backend:\n  type: postgres\n"), 0644))

	assert.NoError(t, writeConfigTo(dir))

	data, err := os.ReadFile(existing)
	assert.NoError(t, err)
	assert.Equal(t, "backend:\n  type: postgres\n", string(data))
}
