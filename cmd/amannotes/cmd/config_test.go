package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amannotes/configs"
	"github.com/Aman-CERP/amannotes/internal/config"
)

func TestConfigCmd_HasSubcommands(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// When: finding config command
	configCmd, _, err := cmd.Find([]string{"config"})
	require.NoError(t, err)

	// Then: init, show and path exist
	names := make(map[string]bool)
	for _, sc := range configCmd.Commands() {
		names[sc.Name()] = true
	}
	assert.True(t, names["init"])
	assert.True(t, names["show"])
	assert.True(t, names["path"])
}

func TestConfigInit_WritesNotebookTemplate(t *testing.T) {
	// Given: an empty notebook directory
	isolateHome(t)
	dir := t.TempDir()

	// When: running config init
	out, err := execute(t, "config", "init", "-C", dir)

	// Then: the notebook template is written
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, config.ProjectFileName))
	require.NoError(t, err)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
	assert.Contains(t, out, "Created configuration")
}

func TestConfigInit_KeepsExistingWithoutForce(t *testing.T) {
	// Given: an existing notebook config
	isolateHome(t)
	dir := t.TempDir()
	path := filepath.Join(dir, config.ProjectFileName)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: running config init without --force
	out, err := execute(t, "config", "init", "-C", dir)

	// Then: the file is untouched
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, _ := os.ReadFile(path)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	// Given: an existing notebook config
	isolateHome(t)
	dir := t.TempDir()
	path := filepath.Join(dir, config.ProjectFileName)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: running config init --force
	_, err := execute(t, "config", "init", "--force", "-C", dir)

	// Then: the template replaces it and the old content is backed up
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))

	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	old, _ := os.ReadFile(backups[0])
	assert.Equal(t, "version: 1\n", string(old))
}

func TestConfigInit_User(t *testing.T) {
	isolateHome(t)

	_, err := execute(t, "config", "init", "--user")

	require.NoError(t, err)
	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, configs.UserConfigTemplate, string(data))
}

func TestConfigPath_OutputsPaths(t *testing.T) {
	home := isolateHome(t)
	dir := t.TempDir()

	out, err := execute(t, "config", "path", "-C", dir)

	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(home, ".config", "amannotes", "config.yaml"))
	assert.Contains(t, out, filepath.Join(dir, config.ProjectFileName))
}

func TestConfigShow_Defaults(t *testing.T) {
	isolateHome(t)

	out, err := execute(t, "config", "show", "--source", "defaults", "--json")

	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr)
	assert.Equal(t, "union", cfg.Index.MergePolicy)
}

func TestConfigShow_UnknownSource(t *testing.T) {
	isolateHome(t)

	_, err := execute(t, "config", "show", "--source", "nowhere")

	require.Error(t, err)
}
