package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaultFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
listen = "0.0.0.0:12345"
max_bytes = 1048576
large_chunk_sz = 2048
log_level = "DEBUG"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:12345", cfg.Listen)
	require.EqualValues(t, 1048576, cfg.MaxBytes)
	require.EqualValues(t, 2048, cfg.LargeChunkSz)
	require.Equal(t, "DEBUG", cfg.LogLevel)

	// Fields absent from the file keep Default's values.
	require.Equal(t, Default().SmallChunkSz, cfg.SmallChunkSz)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not valid = = toml"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestGeometry_ProjectsConfiguredFields(t *testing.T) {
	cfg := Default()
	cfg.LargeChunkSz = 4096
	cfg.SmallChunkSz = 512
	cfg.KeyMaxLength = 100

	geo := cfg.Geometry()
	require.EqualValues(t, 4096, geo.LargeChunkSz)
	require.EqualValues(t, 512, geo.SmallChunkSz)
	require.Equal(t, 100, geo.KeyMaxLength)
}
