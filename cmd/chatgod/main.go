// chatgod lets chat viewers take turns speaking on stream: a viewer is
// picked per slot and their messages are read aloud in that slot's voice.
//
// Usage:
//
//	chatgod [--config file] [--console] [--tui] [--no-audio] [--verbose|--quiet]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/chatgod/internal/chat"
	"github.com/hammamikhairi/chatgod/internal/config"
	"github.com/hammamikhairi/chatgod/internal/dashboard"
	"github.com/hammamikhairi/chatgod/internal/dispatch"
	"github.com/hammamikhairi/chatgod/internal/display"
	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
	"github.com/hammamikhairi/chatgod/internal/operator"
	"github.com/hammamikhairi/chatgod/internal/overlay"
	"github.com/hammamikhairi/chatgod/internal/pool"
	"github.com/hammamikhairi/chatgod/internal/render"
	"github.com/hammamikhairi/chatgod/internal/speech"
)

// drainTimeout bounds how long shutdown waits for queued speech.
const drainTimeout = 30 * time.Second

var (
	configFile string
	dotEnvFile string
	verbose    bool
	quiet      bool
	noAudio    bool
	useTUI     bool

	v = viper.New()

	rootCmd = &cobra.Command{
		Use:          "chatgod",
		Short:        "Let chat take turns speaking on stream",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (default chatgod.yml in the user config dir)")
	flags.StringVar(&dotEnvFile, "env-file", ".env", "file with secrets to load into the environment")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose/debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "disable all logging")
	flags.BoolVar(&noAudio, "no-audio", false, "synthesize and time clips without an audio device")
	flags.BoolVar(&useTUI, "tui", false, "run the operator console in the terminal")
	flags.String("log-file", "", "file to write logs to (default stderr)")
	flags.Bool("console", false, "read chat from stdin as \"user: text\" lines instead of Twitch")
	flags.String("addr", "", "dashboard listen address")

	_ = v.BindPFlag("log.file", flags.Lookup("log-file"))
	_ = v.BindPFlag("console", flags.Lookup("console"))
	_ = v.BindPFlag("dashboard.addr", flags.Lookup("addr"))

	config.SetDefaults(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(*cobra.Command, []string) error {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return err
	}
	if err := config.Discover(v, configFile); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	switch {
	case quiet:
		cfg.LogLevel = "off"
	case verbose:
		cfg.LogLevel = "verbose"
	}
	if noAudio {
		cfg.PlaybackEnabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	if useTUI && cfg.LogFile == "" {
		// The terminal belongs to the UI.
		cfg.LogFile = filepath.Join(os.TempDir(), config.AppName+".log")
	}
	logOut, closeLog := openLog(cfg.LogFile)
	defer closeLog()
	log := logger.New(cfg.LoggerLevel(), logOut)
	if used := v.ConfigFileUsed(); used != "" {
		log.Debug("using configuration file %s", used)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	synth, err := buildSynthesizer(ctx, cfg, log)
	if err != nil {
		return err
	}
	device := buildDevice(cfg, log)
	ov, closeOverlay := buildOverlay(cfg, log)
	defer closeOverlay()

	hub := dashboard.NewHub(log)
	events := domain.Events{hub}

	// ui is nil unless --tui; the controller is built later, so the
	// status bar reads it through a closure.
	var ui *display.UI
	var ctrl *dispatch.Controller
	var feed *operator.Feed
	if useTUI {
		ui = display.NewUI(func() []domain.SlotState { return ctrl.Snapshot() })
		feed = operator.NewFeed(ui.Println)
		events = append(events, feed)
	}

	pipeline := render.NewPipeline(synth, device, ov, log,
		render.WithPadding(cfg.Padding),
		render.WithRateLimit(cfg.RequestsPerMinute),
		render.WithEvents(events),
	)
	queue := render.NewQueue(pipeline, cfg.SlotCount, log, render.WithQueueSize(cfg.QueueSize))
	// Jobs outlive the signal context so shutdown can drain them.
	queue.Start(context.WithoutCancel(ctx))

	ctrl = dispatch.New(log,
		dispatch.WithSlotCount(cfg.SlotCount),
		dispatch.WithCommandPrefix(cfg.CommandPrefix),
		dispatch.WithDefaultVoice(cfg.DefaultVoice),
		dispatch.WithPoolOptions(
			pool.WithMaxUsers(cfg.MaxUsers),
			pool.WithActivityWindow(cfg.ActivityWindow),
		),
		dispatch.WithEvents(events),
		dispatch.WithJobs(queue),
	)

	config.Watch(v, log, func(next config.Config) {
		ctrl.SetPoolLimits(next.MaxUsers, next.ActivityWindow)
		if !quiet && !verbose {
			log.SetLevel(next.LoggerLevel())
		}
	})

	server := dashboard.NewServer(hub, ctrl, log)
	messages := make(chan domain.ChatMessage, 64)

	for i := 1; i <= cfg.SlotCount; i++ {
		log.Info("slot %d: register with %q", i, ctrl.RegistrationCommand(domain.SlotID(i)))
	}

	if ui != nil {
		fmt.Print(display.RenderBanner())
		feed.Hint(fmt.Sprintf("dashboard on %s, type \"help\" for commands", cfg.DashboardAddr))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.DashboardAddr)
	})
	// In the TUI the prompt owns stdin, so console chat is typed there.
	if !(useTUI && cfg.Console) {
		source := buildChatSource(cfg, log)
		g.Go(func() error {
			return source.Run(gctx, messages)
		})
	}
	g.Go(func() error {
		ctrl.Run(gctx, messages)
		return nil
	})
	if ui != nil {
		op := operator.New(ctrl, feed, cfg.Console, log)
		g.Go(func() error {
			return op.Run(gctx, ui.InputChan(), messages)
		})
		g.Go(func() error {
			if err := ui.Run(); err != nil {
				return err
			}
			// Ctrl-C inside the UI.
			return operator.ErrQuit
		})
		g.Go(func() error {
			<-gctx.Done()
			ui.Quit()
			return nil
		})
	}

	runErr := g.Wait()
	if errors.Is(runErr, operator.ErrQuit) || errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr != nil {
		log.Error("%v", runErr)
	}

	log.Info("shutting down, draining speech queue (up to %s)", drainTimeout)
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := queue.Close(drainCtx); err != nil {
		log.Warn("speech queue: %v", err)
	}
	return runErr
}

// buildSynthesizer returns the configured backend behind the audio cache.
// Polly falls back to Google Translate after repeated failures.
func buildSynthesizer(ctx context.Context, cfg config.Config, log *logger.Logger) (domain.Synthesizer, error) {
	google := speech.NewGoogle(cfg.Language, log)

	var synth domain.Synthesizer = google
	if cfg.Engine == config.EnginePolly {
		polly, err := speech.NewPolly(ctx, cfg.Region, cfg.Secrets.AWSAccessKeyID, cfg.Secrets.AWSSecretAccessKey, log,
			speech.WithOutputFormat(cfg.OutputFormat),
			speech.WithSampleRate(cfg.SampleRate),
			speech.WithEngine(cfg.PollyEngine),
		)
		if err != nil {
			return nil, err
		}
		synth = speech.NewFallback(polly, google, cfg.MaxFailures, log)
		log.Info("speech: polly (region=%s), google translate fallback", cfg.Region)
	} else {
		log.Info("speech: google translate (language=%s)", cfg.Language)
	}

	return speech.NewCachedSynthesizer(synth, cfg.CacheDir, cfg.OutputFormat, log,
		speech.WithMaxEntries(cfg.CacheEntries),
	), nil
}

func buildDevice(cfg config.Config, log *logger.Logger) domain.AudioDevice {
	opts := []speech.PlayerOption{
		speech.WithPlaybackRate(cfg.SampleRate),
		speech.WithTempDir(cfg.TempDir),
	}
	if !cfg.PlaybackEnabled {
		log.Info("audio: playback disabled")
		return speech.NewSilentPlayer(log, opts...)
	}
	player, err := speech.NewPlayer(log, opts...)
	if err != nil {
		log.Error("audio player init failed, continuing silently: %v", err)
		return speech.NewSilentPlayer(log, opts...)
	}
	return player
}

func buildOverlay(cfg config.Config, log *logger.Logger) (domain.Overlay, func()) {
	if !cfg.OBSEnabled {
		log.Info("overlay: obs disabled")
		return overlay.NoOp{}, func() {}
	}
	obs, err := overlay.Dial(cfg.OBSHost, cfg.OBSPort, cfg.Secrets.OBSPassword, log,
		overlay.WithSource(cfg.OBSSource),
		overlay.WithFilterFormat(cfg.OBSFilterFormat),
	)
	if err != nil {
		log.Warn("overlay: %v; continuing without obs", err)
		return overlay.NoOp{}, func() {}
	}
	return obs, func() {
		if err := obs.Close(); err != nil {
			log.Debug("overlay: disconnect: %v", err)
		}
	}
}

func buildChatSource(cfg config.Config, log *logger.Logger) domain.ChatSource {
	if cfg.Console {
		return chat.NewConsole(os.Stdin, log)
	}
	return chat.NewTwitch(cfg.TwitchChannel, cfg.TwitchUsername, cfg.Secrets.TwitchAccessToken, log)
}

// openLog opens path for appending, falling back to stderr.
func openLog(path string) (io.Writer, func()) {
	if path == "" || path == "stderr" {
		return os.Stderr, func() {}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", path, err)
		return os.Stderr, func() {}
	}
	return f, func() { f.Close() }
}
