// Package commands implements the CLI command structure using Cobra.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/petal-labs/anthropic-go/cli/config"
	"github.com/petal-labs/anthropic-go/cli/keystore"
	"github.com/petal-labs/anthropic-go/core"
	"github.com/petal-labs/anthropic-go/providers/anthropic"
	"github.com/petal-labs/anthropic-go/telemetry"
)

// ConfigLoader loads CLI config from a path.
type ConfigLoader func(path string) (*config.Config, error)

// KeystoreFactory creates a keystore instance.
type KeystoreFactory func() (keystore.Keystore, error)

// AppOption customizes App dependencies.
type AppOption func(*App)

// App holds CLI state and runtime dependencies.
type App struct {
	root *cobra.Command

	loadConfig  ConfigLoader
	newKeystore KeystoreFactory
	isTerminal  func(fd int) bool
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer

	cfgFile    string
	model      string
	jsonOutput bool
	verbose    bool

	cfg     *config.Config
	logger  *zap.Logger
	limiter *core.RateLimiter

	chatPrompt      string
	chatSystem      string
	chatTemperature float64
	chatMaxTokens   int
	chatStream      bool
}

// WithConfigLoader injects a config loader dependency.
func WithConfigLoader(loader ConfigLoader) AppOption {
	return func(a *App) {
		if loader != nil {
			a.loadConfig = loader
		}
	}
}

// WithKeystoreFactory injects a keystore factory dependency.
func WithKeystoreFactory(factory KeystoreFactory) AppOption {
	return func(a *App) {
		if factory != nil {
			a.newKeystore = factory
		}
	}
}

// WithIO injects process I/O streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) AppOption {
	return func(a *App) {
		if stdin != nil {
			a.stdin = stdin
		}
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// NewApp creates a new CLI app with default dependencies.
func NewApp(opts ...AppOption) *App {
	a := &App{
		loadConfig:  config.LoadConfig,
		newKeystore: keystore.NewKeystore,
		isTerminal:  isTerminal,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.root = a.newRootCommand()
	return a
}

func (a *App) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "anthropic-go",
		Short: "Command-line client for the Anthropic Messages API",
		Long: `anthropic-go sends messages to the Anthropic API with client-side
rate limiting, retries with backoff, and streaming output.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	// Global flags available to all commands.
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ~/.anthropic-go/config.yaml)")
	root.PersistentFlags().StringVar(&a.model, "model", "", "model ID (e.g. claude-sonnet-4-5)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "emit JSON output")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(a.newChatCommand())
	root.AddCommand(a.newModelsCommand())
	root.AddCommand(a.newKeysCommand())
	root.AddCommand(a.newVersionCommand())

	return root
}

// Execute runs the root command. Errors not already reported by a
// command are written to stderr.
func (a *App) Execute() error {
	err := a.root.Execute()
	var ee *exitError
	if err != nil && !(errors.As(err, &ee) && ee.reported) {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}
	return err
}

// SetArgs overrides os.Args for the next Execute.
func (a *App) SetArgs(args []string) {
	a.root.SetArgs(args)
}

func (a *App) initConfig() error {
	path := a.cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := a.loadConfig(path)
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}
	a.cfg = cfg

	// Apply config defaults if flags not set.
	if a.model == "" {
		a.model = cfg.DefaultModel
	}

	level := cfg.Level()
	if a.verbose {
		level = zapcore.DebugLevel
	}
	a.logger = newLogger(a.stderr, level)

	a.limiter, err = cfg.RateLimiter(a.logger.Named("ratelimit"))
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}
	return nil
}

// newLogger writes human-readable logs at level or above to w.
func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	c := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(c)
}

// newClient builds an API client from the loaded config and a resolved key.
func (a *App) newClient() (*anthropic.Client, error) {
	key, err := a.resolveAPIKey()
	if err != nil {
		return nil, err
	}
	opts := append(a.cfg.ClientOptions(a.logger, a.limiter),
		anthropic.WithTelemetry(telemetry.NewLogHook(a.logger.Named("calls"))))
	return anthropic.New(key.Expose(), opts...), nil
}

var defaultApp = NewApp()

// Execute runs the default app root command.
func Execute() error {
	return defaultApp.Execute()
}
