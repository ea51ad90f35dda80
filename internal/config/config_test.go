package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Workers = 3
	cfg.Extractors = []string{"dicom", "nifti1"}
	cfg.DICOM.AggregateContent = false
	cfg.Import.ContainerURL = "https://example.com/container.git"

	require.NoError(t, cfg.Save(path))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\ndicom:\n  max_field_size: 10\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 10, cfg.DICOM.MaxFieldSize)
	assert.Equal(t, DefaultExtractors, cfg.Extractors)
	assert.Equal(t, "auto", cfg.Report.Style)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATALAD_NI_STORE", "/tmp/meta.db")
	t.Setenv("DATALAD_NI_WORKERS", "7")
	t.Setenv("DATALAD_NI_LOG_JSON", "true")
	t.Setenv("DATALAD_NI_EXTRACTORS", "dicom, bids ,")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/meta.db", cfg.Store)
	assert.Equal(t, 7, cfg.Workers)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, []string{"dicom", "bids"}, cfg.Extractors)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "bad yaml", content: "workers: [\n"},
		{name: "negative workers", content: "workers: -1\n"},
		{name: "empty store", content: "store: \"\"\n"},
		{name: "bad env workers", env: map[string]string{"DATALAD_NI_WORKERS": "many"}},
		{name: "bad env json", env: map[string]string{"DATALAD_NI_LOG_JSON": "maybe"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			if tc.content != "" {
				require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultPath_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "datalad-ni", "config.yaml"), DefaultPath())
}
