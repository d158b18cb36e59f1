// Package config loads chatgod's settings from a YAML file, CHATGOD_*
// environment variables, a .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// AppName names the config file, the env prefix and the config directory.
const AppName = "chatgod"

// Synthesis engines.
const (
	EnginePolly  = "polly"
	EngineGoogle = "google"
)

// MaxSlots bounds slots.count; registration commands are single digits.
const MaxSlots = 9

// OutputFormat is the only synth.output_format the players can decode.
const OutputFormat = "mp3"

// Secrets come only from the environment (or .env), never from the
// config file.
type Secrets struct {
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `env:"AWS_REGION"`
	TwitchChannel      string `env:"TWITCH_CHANNEL"`
	TwitchUsername     string `env:"TWITCH_USERNAME"`
	TwitchAccessToken  string `env:"TWITCH_ACCESS_TOKEN"`
	OBSPassword        string `env:"OBS_WEBSOCKET_PASSWORD"`
}

// Config is the resolved application configuration.
type Config struct {
	SlotCount     int
	CommandPrefix string
	DefaultVoice  string

	MaxUsers       int
	ActivityWindow time.Duration

	PlaybackEnabled bool
	Padding         time.Duration
	SampleRate      int
	TempDir         string

	QueueSize         int
	RequestsPerMinute int

	Engine       string
	OutputFormat string
	PollyEngine  string
	Region       string
	CacheDir     string
	CacheEntries int
	MaxFailures  int
	Language     string

	OBSEnabled      bool
	OBSHost         string
	OBSPort         int
	OBSSource       string
	OBSFilterFormat string

	DashboardAddr string

	TwitchChannel  string
	TwitchUsername string
	Console        bool

	LogLevel string
	LogFile  string

	Secrets Secrets
}

// SetDefaults registers a default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("slots.count", domain.DefaultSlotCount)
	v.SetDefault("slots.command_prefix", "!player")
	v.SetDefault("slots.default_voice", domain.DefaultVoice)

	v.SetDefault("pool.max_users", 2000)
	v.SetDefault("pool.activity_window", "450s")

	v.SetDefault("playback.enabled", true)
	v.SetDefault("playback.padding", "300ms")
	v.SetDefault("playback.sample_rate", 22050)
	v.SetDefault("playback.temp_dir", "")

	v.SetDefault("render.queue_size", 16)
	v.SetDefault("render.requests_per_minute", 0)

	v.SetDefault("synth.engine", EnginePolly)
	v.SetDefault("synth.output_format", "mp3")
	v.SetDefault("synth.polly_engine", "standard")
	v.SetDefault("synth.region", "us-east-1")
	v.SetDefault("synth.cache_dir", "")
	v.SetDefault("synth.cache_entries", 256)
	v.SetDefault("synth.max_failures", 3)
	v.SetDefault("synth.google.language", "en")

	v.SetDefault("obs.enabled", true)
	v.SetDefault("obs.host", "localhost")
	v.SetDefault("obs.port", 4455)
	v.SetDefault("obs.source", "Line In")
	v.SetDefault("obs.filter_format", "Audio Move Filter %d")

	v.SetDefault("dashboard.addr", ":8080")

	v.SetDefault("twitch.channel", "")
	v.SetDefault("twitch.username", "")
	v.SetDefault("console", false)

	v.SetDefault("log.level", "normal")
	v.SetDefault("log.file", "")
}

// Discover points v at the config file: file when given, otherwise
// chatgod.yml in CHATGOD_CONFIG_HOME, $XDG_CONFIG_HOME/chatgod or the
// platform config dirs. A missing file is not an error.
func Discover(v *viper.Viper, file string) error {
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		scope := gap.NewScope(gap.User, AppName)
		dirs, err := scope.ConfigDirs()
		if err != nil {
			return fmt.Errorf("finding config directories: %w", err)
		}
		if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
			dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
		}
		if c := os.Getenv("CHATGOD_CONFIG_HOME"); c != "" {
			dirs = append([]string{c}, dirs...)
		}
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (file == "" && errors.Is(err, fs.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration from v and the environment.
func Load(v *viper.Viper) (Config, error) {
	secrets, err := env.ParseAs[Secrets]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	cfg := Config{
		SlotCount:     v.GetInt("slots.count"),
		CommandPrefix: v.GetString("slots.command_prefix"),
		DefaultVoice:  v.GetString("slots.default_voice"),

		MaxUsers:       v.GetInt("pool.max_users"),
		ActivityWindow: v.GetDuration("pool.activity_window"),

		PlaybackEnabled: v.GetBool("playback.enabled"),
		Padding:         v.GetDuration("playback.padding"),
		SampleRate:      v.GetInt("playback.sample_rate"),
		TempDir:         v.GetString("playback.temp_dir"),

		QueueSize:         v.GetInt("render.queue_size"),
		RequestsPerMinute: v.GetInt("render.requests_per_minute"),

		Engine:       v.GetString("synth.engine"),
		OutputFormat: v.GetString("synth.output_format"),
		PollyEngine:  v.GetString("synth.polly_engine"),
		Region:       v.GetString("synth.region"),
		CacheDir:     v.GetString("synth.cache_dir"),
		CacheEntries: v.GetInt("synth.cache_entries"),
		MaxFailures:  v.GetInt("synth.max_failures"),
		Language:     v.GetString("synth.google.language"),

		OBSEnabled:      v.GetBool("obs.enabled"),
		OBSHost:         v.GetString("obs.host"),
		OBSPort:         v.GetInt("obs.port"),
		OBSSource:       v.GetString("obs.source"),
		OBSFilterFormat: v.GetString("obs.filter_format"),

		DashboardAddr: v.GetString("dashboard.addr"),

		TwitchChannel:  v.GetString("twitch.channel"),
		TwitchUsername: v.GetString("twitch.username"),
		Console:        v.GetBool("console"),

		LogLevel: v.GetString("log.level"),
		LogFile:  v.GetString("log.file"),

		Secrets: secrets,
	}

	// Secrets in the environment win over the file for shared settings.
	if secrets.AWSRegion != "" {
		cfg.Region = secrets.AWSRegion
	}
	if secrets.TwitchChannel != "" {
		cfg.TwitchChannel = secrets.TwitchChannel
	}
	if secrets.TwitchUsername != "" {
		cfg.TwitchUsername = secrets.TwitchUsername
	}
	return cfg, nil
}

// Validate reports every missing or out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.SlotCount < 1 || c.SlotCount > MaxSlots {
		errs = append(errs, fmt.Errorf("slots.count must be 1..%d, got %d", MaxSlots, c.SlotCount))
	}
	if c.CommandPrefix == "" {
		errs = append(errs, fmt.Errorf("%w: slots.command_prefix", domain.ErrMissingConfig))
	}
	if c.MaxUsers <= 0 {
		errs = append(errs, fmt.Errorf("pool.max_users must be positive, got %d", c.MaxUsers))
	}
	if c.ActivityWindow <= 0 {
		errs = append(errs, fmt.Errorf("pool.activity_window must be positive, got %s", c.ActivityWindow))
	}
	if c.Padding < 0 {
		errs = append(errs, fmt.Errorf("playback.padding must not be negative, got %s", c.Padding))
	}
	if !c.Console && c.TwitchChannel == "" {
		errs = append(errs, fmt.Errorf("%w: TWITCH_CHANNEL (or run with --console)", domain.ErrMissingConfig))
	}
	if c.OutputFormat != OutputFormat {
		errs = append(errs, fmt.Errorf("synth.output_format must be %q, got %q", OutputFormat, c.OutputFormat))
	}
	if c.CacheEntries <= 0 {
		errs = append(errs, fmt.Errorf("synth.cache_entries must be positive, got %d", c.CacheEntries))
	}
	switch c.Engine {
	case EnginePolly:
		if c.Secrets.AWSAccessKeyID == "" || c.Secrets.AWSSecretAccessKey == "" {
			errs = append(errs, fmt.Errorf("%w: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY", domain.ErrMissingConfig))
		}
	case EngineGoogle:
	default:
		errs = append(errs, fmt.Errorf("synth.engine must be %q or %q, got %q", EnginePolly, EngineGoogle, c.Engine))
	}
	return errors.Join(errs...)
}

// LoggerLevel maps log.level onto a logger level.
func (c Config) LoggerLevel() logger.Level {
	switch c.LogLevel {
	case "off", "quiet":
		return logger.LevelOff
	case "verbose", "debug":
		return logger.LevelVerbose
	default:
		return logger.LevelNormal
	}
}

// Watch reloads the config file on change and hands the new configuration
// to apply. Invalid reloads are logged and skipped.
func Watch(v *viper.Viper, log *logger.Logger, apply func(Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			log.Warn("config: ignoring change to %s: %v", e.Name, err)
			return
		}
		log.Info("config: reloaded %s", e.Name)
		apply(cfg)
	})
	v.WatchConfig()
}
