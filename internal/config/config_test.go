package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Data:   DataConfig{BasePath: "/var/lib/importer"},
		Daemon: DaemonConfig{URL: "http://localhost:56001", RequestsPerSecond: 20},
		Import: ImportConfig{MaxUploadBytes: 1 << 20},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestValidate_DaemonURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"http://localhost:56001", true},
		{"https://daemon.example.com", true},
		{"ftp://daemon.example.com", false},
		{"localhost:56001", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := validConfig()
			cfg.Daemon.URL = tt.url
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestValidate_RejectsBadNumbers(t *testing.T) {
	cfg := validConfig()
	cfg.Daemon.RequestsPerSecond = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Import.MaxUploadBytes = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Logger.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DAEMON_RPS", "5")
	t.Setenv("IMPORT_REHOST_IMAGES", "yes")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := LoadConfig([]string{
		"-log-level", "debug",
		"-data-path", dir,
		"-daemon-timeout", "5s",
		"-env-file", filepath.Join(dir, "missing.env"),
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, dir, cfg.Data.BasePath)
	assert.Equal(t, filepath.Join(dir, "db"), cfg.Data.DBPath())
	assert.InDelta(t, 5.0, cfg.Daemon.RequestsPerSecond, 0.0001)
	assert.Equal(t, 5*time.Second, cfg.Daemon.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
	assert.True(t, cfg.Import.RehostImages)
	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig([]string{
		"-data-path", dir,
		"-read-timeout", "soon",
		"-env-file", filepath.Join(dir, "missing.env"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_READ_TIMEOUT")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/imports", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "imports"), got)

	got, err = expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("relative/dir", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("IMPORTER_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "IMPORTER_TEST_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "IMPORTER_TEST_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "IMPORTER_TEST_UNSET", "default"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\n\nIMPORTER_ENV_A=alpha\nIMPORTER_ENV_B = \"quoted\"\nIMPORTER_ENV_C=keep\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("IMPORTER_ENV_C", "existing")
	t.Setenv("IMPORTER_ENV_A", "")
	t.Setenv("IMPORTER_ENV_B", "")

	require.NoError(t, loadEnvFile(path))

	assert.Equal(t, "alpha", os.Getenv("IMPORTER_ENV_A"))
	assert.Equal(t, "quoted", os.Getenv("IMPORTER_ENV_B"))
	assert.Equal(t, "existing", os.Getenv("IMPORTER_ENV_C"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOT_A_PAIR\n"), 0o600))

	err := loadEnvFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	assert.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}
