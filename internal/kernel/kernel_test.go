package kernel

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

func withLockdownFile(t *testing.T, content string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lockdown")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	old := lockdownPath
	lockdownPath = path
	t.Cleanup(func() { lockdownPath = old })
}

func TestLockdownActiveMode(t *testing.T) {
	withLockdownFile(t, "none [integrity] confidentiality\n")

	mode, err := Lockdown()
	require.NoError(t, err)
	assert.Equal(t, LockdownIntegrity, mode)
	assert.True(t, Locked())
}

func TestLockdownNone(t *testing.T) {
	withLockdownFile(t, "[none] integrity confidentiality\n")

	mode, err := Lockdown()
	require.NoError(t, err)
	assert.Equal(t, LockdownNone, mode)
	assert.False(t, Locked())
}

func TestLockdownMissingFileMeansNone(t *testing.T) {
	old := lockdownPath
	lockdownPath = filepath.Join(t.TempDir(), "does-not-exist")
	t.Cleanup(func() { lockdownPath = old })

	mode, err := Lockdown()
	require.NoError(t, err)
	assert.Equal(t, LockdownNone, mode)
}

func withConfigFile(t *testing.T, lines string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.gz")

	f, err := os.Create(path)
	require.NoError(t, err)

	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(lines))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })
}

func TestConfigValue(t *testing.T) {
	withConfigFile(t, "# comment\nCONFIG_USB=y\nCONFIG_MODULES=m\n")

	v, err := ConfigValue("CONFIG_USB")
	require.NoError(t, err)
	assert.Equal(t, "y", v)

	_, err = ConfigValue("CONFIG_NOT_THERE")
	assert.True(t, fwupderr.Is(err, fwupderr.NotFound))
}

func TestConfigValueNotExported(t *testing.T) {
	old := configPath
	configPath = filepath.Join(t.TempDir(), "missing.gz")
	t.Cleanup(func() { configPath = old })

	_, err := ConfigValue("CONFIG_USB")
	assert.True(t, fwupderr.Is(err, fwupderr.NotSupported))
}
