package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches into dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("database", "", "")
	fs.String("output", "", "")
	fs.String("log-level", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	res, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), res.Config)
	assert.Empty(t, res.FileUsed)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`
database_path: from-file.db
page_size: 25
output: yaml
default_column_width: 140
`), 0o600))

	t.Run("file over defaults", func(t *testing.T) {
		res, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, "from-file.db", res.Config.DatabasePath)
		assert.Equal(t, 25, res.Config.PageSize)
		assert.Equal(t, OutputYAML, res.Config.Output)
		assert.Equal(t, int64(140), res.Config.DefaultColumnWidth)
		assert.Equal(t, DefaultLogLevel, res.Config.LogLevel)
		assert.Equal(t, filepath.Join(".", ConfigFileName), res.FileUsed)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("LEAPTABLE_PAGE_SIZE", "10")
		t.Setenv("LEAPTABLE_DATABASE_PATH", "from-env.db")

		res, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, 10, res.Config.PageSize)
		assert.Equal(t, "from-env.db", res.Config.DatabasePath)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("LEAPTABLE_DATABASE_PATH", "from-env.db")
		fs := testFlags()
		require.NoError(t, fs.Parse([]string{"--database", "from-flag.db", "--log-level", "DEBUG", "--output", "JSON"}))

		res, err := Load("", fs)
		require.NoError(t, err)
		assert.Equal(t, "from-flag.db", res.Config.DatabasePath)
		assert.Equal(t, "debug", res.Config.LogLevel)
		assert.Equal(t, OutputJSON, res.Config.Output)
	})

	t.Run("unset flags do not override", func(t *testing.T) {
		res, err := Load("", testFlags())
		require.NoError(t, err)
		assert.Equal(t, "from-file.db", res.Config.DatabasePath)
	})
}

func TestLoad_ExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 7\n"), 0o600))

	res, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Config.PageSize)
	assert.Equal(t, path, res.FileUsed)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "zero page size", content: "page_size: 0\n", errMsg: "page_size"},
		{name: "unknown output", content: "output: xml\n", errMsg: "output format"},
		{name: "unknown log level", content: "log_level: loud\n", errMsg: "log level"},
		{name: "empty database", content: "database_path: ' '\n", errMsg: "database_path"},
		{name: "zero width", content: "default_column_width: 0\n", errMsg: "default_column_width"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			chdir(t, dir)
			require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileNameAlt), []byte(tt.content), 0o600))

			_, err := Load("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
