package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// clearSecrets blanks every secret so host variables do not leak in.
func clearSecrets(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION",
		"TWITCH_CHANNEL", "TWITCH_USERNAME", "TWITCH_ACCESS_TOKEN",
		"OBS_WEBSOCKET_PASSWORD",
	} {
		t.Setenv(k, "")
	}
}

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	clearSecrets(t)
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.SlotCount)
	assert.Equal(t, "!player", cfg.CommandPrefix)
	assert.Equal(t, "Joanna", cfg.DefaultVoice)
	assert.Equal(t, 2000, cfg.MaxUsers)
	assert.Equal(t, 450*time.Second, cfg.ActivityWindow)
	assert.Equal(t, 300*time.Millisecond, cfg.Padding)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, EnginePolly, cfg.Engine)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 4455, cfg.OBSPort)
	assert.Equal(t, "Line In", cfg.OBSSource)
	assert.Equal(t, "Audio Move Filter %d", cfg.OBSFilterFormat)
	assert.Equal(t, ":8080", cfg.DashboardAddr)
	assert.Equal(t, "mp3", cfg.OutputFormat)
	assert.Equal(t, 256, cfg.CacheEntries)
}

func TestLoadedOutputFormatIsValidated(t *testing.T) {
	clearSecrets(t)
	v := newViper(t)
	v.Set("synth.engine", EngineGoogle)
	v.Set("console", true)
	v.Set("synth.output_format", "ogg_vorbis")

	cfg, err := Load(v)
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synth.output_format")

	v.Set("synth.output_format", "mp3")
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestSecretsFromEnvironment(t *testing.T) {
	clearSecrets(t)
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "shh")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("TWITCH_CHANNEL", "somestreamer")
	t.Setenv("OBS_WEBSOCKET_PASSWORD", "obs")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "AKIA", cfg.Secrets.AWSAccessKeyID)
	assert.Equal(t, "obs", cfg.Secrets.OBSPassword)
	assert.Equal(t, "eu-central-1", cfg.Region)
	assert.Equal(t, "somestreamer", cfg.TwitchChannel)
	assert.NoError(t, cfg.Validate())
}

func TestDiscoverExplicitFile(t *testing.T) {
	clearSecrets(t)
	path := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
slots:
  count: 5
  default_voice: Brian
pool:
  max_users: 10
  activity_window: 1m
synth:
  engine: google
console: true
`), 0o644))

	v := newViper(t)
	require.NoError(t, Discover(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.SlotCount)
	assert.Equal(t, "Brian", cfg.DefaultVoice)
	assert.Equal(t, 10, cfg.MaxUsers)
	assert.Equal(t, time.Minute, cfg.ActivityWindow)
	assert.Equal(t, EngineGoogle, cfg.Engine)
	assert.NoError(t, cfg.Validate())
}

func TestDiscoverConfigHome(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	t.Setenv("CHATGOD_CONFIG_HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatgod.yml"), []byte("dashboard:\n  addr: \":9090\"\n"), 0o644))

	v := newViper(t)
	require.NoError(t, Discover(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.DashboardAddr)
}

func TestDiscoverMissingFileIsFine(t *testing.T) {
	t.Setenv("CHATGOD_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.NoError(t, Discover(newViper(t), ""))
}

func TestPrefixedEnvOverridesDefaults(t *testing.T) {
	clearSecrets(t)
	t.Setenv("CHATGOD_CONFIG_HOME", t.TempDir())
	t.Setenv("CHATGOD_SLOTS_COUNT", "2")

	v := newViper(t)
	require.NoError(t, Discover(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.SlotCount)
}

func TestLoadDotEnv(t *testing.T) {
	clearSecrets(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TWITCH_ACCESS_TOKEN=abc123\nAWS_REGION=ap-south-1\n"), 0o644))

	// godotenv does not override variables that are already set, even empty.
	require.NoError(t, os.Unsetenv("TWITCH_ACCESS_TOKEN"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "abc123", os.Getenv("TWITCH_ACCESS_TOKEN"))
	assert.Equal(t, "", os.Getenv("AWS_REGION"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			SlotCount:      3,
			CommandPrefix:  "!player",
			MaxUsers:       2000,
			ActivityWindow: time.Minute,
			Engine:         EnginePolly,
			OutputFormat:   "mp3",
			CacheEntries:   256,
			TwitchChannel:  "chan",
			Secrets:        Secrets{AWSAccessKeyID: "a", AWSSecretAccessKey: "b"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantMissing bool
	}{
		{"no slots", func(c *Config) { c.SlotCount = 0 }, false},
		{"too many slots", func(c *Config) { c.SlotCount = 10 }, false},
		{"no prefix", func(c *Config) { c.CommandPrefix = "" }, true},
		{"zero max users", func(c *Config) { c.MaxUsers = 0 }, false},
		{"zero window", func(c *Config) { c.ActivityWindow = 0 }, false},
		{"negative padding", func(c *Config) { c.Padding = -time.Second }, false},
		{"no channel", func(c *Config) { c.TwitchChannel = "" }, true},
		{"no aws keys", func(c *Config) { c.Secrets = Secrets{} }, true},
		{"bad engine", func(c *Config) { c.Engine = "espeak" }, false},
		{"ogg output", func(c *Config) { c.OutputFormat = "ogg_vorbis" }, false},
		{"pcm output", func(c *Config) { c.OutputFormat = "pcm" }, false},
		{"empty output", func(c *Config) { c.OutputFormat = "" }, false},
		{"zero cache entries", func(c *Config) { c.CacheEntries = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.wantMissing, errors.Is(err, domain.ErrMissingConfig))
		})
	}

	cfg := valid()
	cfg.TwitchChannel = ""
	cfg.Console = true
	cfg.Engine = EngineGoogle
	cfg.Secrets = Secrets{}
	assert.NoError(t, cfg.Validate(), "console mode with google needs no secrets")
}

func TestLoggerLevel(t *testing.T) {
	assert.Equal(t, logger.LevelOff, Config{LogLevel: "quiet"}.LoggerLevel())
	assert.Equal(t, logger.LevelVerbose, Config{LogLevel: "verbose"}.LoggerLevel())
	assert.Equal(t, logger.LevelNormal, Config{LogLevel: ""}.LoggerLevel())
}
