package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/maint/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	viper.Reset()
	setConfigDefaults(dir)
	viper.Set("user.id", "u-maint")
	viper.Set("user.name", "Mo")
	viper.Set("user.role", "maintenance")
	viper.Set("calendar.timezone", "UTC")

	ui = output.New()
	t.Cleanup(shutdown)

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "maint configuration")
	assert.Contains(t, string(data), `driver: "sqlite"`)
	assert.Contains(t, string(data), `timezone: "UTC"`)
}

func TestConfigInit_RoundTripsThroughViper(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, configInitRun())

	viper.Reset()
	viper.SetConfigFile(dir + "/config.yaml")
	require.NoError(t, viper.ReadInConfig())
	assert.Equal(t, "maintenance", viper.GetString("user.role"))
	assert.Equal(t, 10, viper.GetInt("limits.max_images"))
	assert.Equal(t, 8080, viper.GetInt("port"))
}

func TestConfigInit_ExistingFile(t *testing.T) {
	for _, tc := range []struct {
		name  string
		force bool
		want  string
	}{
		{name: "kept without force", force: false, want: "existing"},
		{name: "replaced with force", force: true, want: "maint configuration"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := testEnv(t)
			cfgPath := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0o644))

			configForce = tc.force
			t.Cleanup(func() { configForce = false })

			err := configInitRun()
			if tc.force {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, "already exists")
			}
			data, readErr := os.ReadFile(cfgPath)
			require.NoError(t, readErr)
			assert.Contains(t, string(data), tc.want)
		})
	}
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	testEnv(t)
	viper.Set("anthropic.api_key", "sk-ant-verysecretvalue")

	var buf = captureOutput(t)
	require.NoError(t, configShowRun())

	assert.Contains(t, buf.String(), "sk-a****")
	assert.NotContains(t, buf.String(), "verysecretvalue")
}

func TestConfigEdit_Errors(t *testing.T) {
	testEnv(t)
	t.Setenv("VISUAL", "")

	t.Setenv("EDITOR", "")
	require.ErrorContains(t, configEditRun(), "$EDITOR is not set")

	t.Setenv("EDITOR", "true")
	require.ErrorContains(t, configEditRun(), "maint config init")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	t.Setenv("MAINT_TEST_KEY", "val")
	assert.Contains(t, detectSource("test_key", "MAINT_TEST_KEY", fileValues), "env")
	assert.Contains(t, detectSource("key_a", "MAINT_KEY_A_NONEXISTENT", fileValues), "file")
	assert.Contains(t, detectSource("key_b", "MAINT_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestConfigKeysEnvVars(t *testing.T) {
	for _, k := range configKeys {
		if k.Key == "db.path" {
			assert.Equal(t, "MAINT_DB_PATH", k.EnvVar)
		}
		if k.Key == "user.location_id" {
			assert.Equal(t, "MAINT_USER_LOCATION_ID", k.EnvVar)
		}
	}
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	err := configInitRun()
	require.NoError(t, err)

	_, err = os.Stat(dir + "/config.yaml")
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}
