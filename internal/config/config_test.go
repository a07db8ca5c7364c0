package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwupd/fwupd-go/internal/config"
	"github.com/fwupd/fwupd-go/internal/logging"
)

func setupDirs(t *testing.T) config.Dirs {
	t.Helper()
	sysDir := t.TempDir()
	localDir := t.TempDir()

	return config.Dirs{SystemDir: sysDir, LocalDir: localDir, ConfName: "fwupd.conf"}
}

func TestSetGetRoundTrip(t *testing.T) {
	dirs := setupDirs(t)
	require.NoError(t, os.WriteFile(filepath.Join(dirs.SystemDir, dirs.ConfName), []byte("[fwupd]\nKey=true\n"), 0o640))

	ctx := context.Background()
	log := logging.New()

	s, err := config.Load(ctx, log, config.FlagNone, dirs)
	require.NoError(t, err)

	require.NoError(t, s.SetValue(ctx, "fwupd", "Key", "false"))

	assert.Equal(t, "false", s.GetValue("fwupd", "Key"))

	immutable, err := os.ReadFile(filepath.Join(dirs.SystemDir, dirs.ConfName))
	require.NoError(t, err)
	assert.Equal(t, "[fwupd]\nKey=true\n", string(immutable))

	mutable, err := os.ReadFile(filepath.Join(dirs.LocalDir, dirs.ConfName))
	require.NoError(t, err)
	assert.Contains(t, string(mutable), "Key = false")
}

func TestSetGetPersistsAcrossReload(t *testing.T) {
	dirs := setupDirs(t)
	ctx := context.Background()
	log := logging.New()

	s, err := config.Load(ctx, log, config.FlagNone, dirs)
	require.NoError(t, err)
	require.NoError(t, s.SetValue(ctx, "fwupd", "OnlyTrusted", "false"))

	reloaded, err := config.Load(ctx, log, config.FlagNone, dirs)
	require.NoError(t, err)
	assert.Equal(t, "false", reloaded.GetValue("fwupd", "OnlyTrusted"))
}

func TestGetValueFallsBackToDefault(t *testing.T) {
	dirs := setupDirs(t)
	ctx := context.Background()
	log := logging.New()

	s, err := config.Load(ctx, log, config.FlagNone, dirs)
	require.NoError(t, err)

	def := "300"
	s.SetDefault("fwupd", "IdleTimeout", &def)

	assert.Equal(t, "300", s.GetValue("fwupd", "IdleTimeout"))
}

func TestGetValueU64Invalid(t *testing.T) {
	dirs := setupDirs(t)
	require.NoError(t, os.WriteFile(filepath.Join(dirs.SystemDir, dirs.ConfName), []byte("[fwupd]\nArchiveSizeMax=not-a-number\n"), 0o640))

	ctx := context.Background()
	log := logging.New()

	s, err := config.Load(ctx, log, config.FlagNone, dirs)
	require.NoError(t, err)

	assert.Equal(t, uint64(1<<64-1), s.GetValueU64("fwupd", "ArchiveSizeMax"))
}

func TestResetDefaults(t *testing.T) {
	dirs := setupDirs(t)
	ctx := context.Background()
	log := logging.New()

	s, err := config.Load(ctx, log, config.FlagNone, dirs)
	require.NoError(t, err)
	require.NoError(t, s.SetValue(ctx, "fwupd", "OnlyTrusted", "false"))
	require.NoError(t, s.ResetDefaults(ctx, "fwupd"))

	assert.Equal(t, "", s.GetValue("fwupd", "OnlyTrusted"))
}

func TestMigrateLegacyFileDropsDefaultsAndRenames(t *testing.T) {
	dirs := setupDirs(t)
	dirs.LegacyNames = []string{"redfish.conf"}
	require.NoError(t, os.WriteFile(filepath.Join(dirs.LocalDir, "redfish.conf"), []byte("[redfish]\nUri=https://example.com\nPort=443\n"), 0o640))

	ctx := context.Background()
	log := logging.New()

	s := config.New(log)
	port := "443"
	s.SetDefault("redfish", "Port", &port)

	require.NoError(t, s.Load(ctx, config.FlagMigrateFiles, dirs))

	_, err := os.Stat(filepath.Join(dirs.LocalDir, "redfish.conf.old"))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dirs.LocalDir, "redfish.conf"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, "https://example.com", s.GetValue("redfish", "Uri"))
	// Port matched its registered default, so migration did not fold it into
	// the merged keyfile; GetValue still resolves it via the default itself.
	assert.Equal(t, "443", s.GetValue("redfish", "Port"))

	mutable, err := os.ReadFile(filepath.Join(dirs.LocalDir, dirs.ConfName))
	require.NoError(t, err)
	assert.NotContains(t, string(mutable), "Port")
}

func TestTrustedReportsGrammar(t *testing.T) {
	resolver := func(placeholder string) (string, bool) {
		if placeholder == "$OEM" {
			return "1234", true
		}

		return "", false
	}

	spec, err := config.ParseTrustedReports("VendorId=$OEM&DistroId=fedora&Flags=auto-install,reboot", resolver)
	require.NoError(t, err)

	assert.Equal(t, "1234", spec.VendorID)
	assert.Equal(t, "fedora", spec.DistroID)
	assert.Equal(t, []string{"auto-install", "reboot"}, spec.Flags)
}

func TestTrustedReportsUnknownKey(t *testing.T) {
	_, err := config.ParseTrustedReports("Bogus=1", nil)
	assert.Error(t, err)
}
