package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deskmate/internal/api"
	"deskmate/internal/config"
	"deskmate/internal/creds"
	"deskmate/internal/logging"
	"deskmate/internal/notify"
	"deskmate/internal/usage"
)

const version = "1.0.0"

var (
	// Global flags
	verbose   bool
	workspace string
	baseURL   string

	// Logger
	logger *zap.Logger

	// Refreshes performed by the client since the last record().
	refreshCount atomic.Int64
)

// zlog returns the command logger, falling back to a nop before
// PersistentPreRunE has run.
func zlog() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mate",
	Short: "deskmate - document upload and AI chat assistant",
	Long: `deskmate is the command line client for the deskmate business assistant.

It uploads documents to your workspace, chats with the assistant grounded in
those documents, and keeps a local cache so history works offline.

Credentials are stored in ~/.deskmate/credentials.json after 'mate login'
and refreshed automatically when they expire.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logging.Initialize(workspaceDir())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the deskmate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("deskmate %s\n", version)
	},
}

// workspaceDir resolves the workspace root, honouring the --workspace flag.
func workspaceDir() string {
	if workspace != "" {
		return workspace
	}
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		return "."
	}
	return root
}

// loadConfig loads .deskmate/config.yaml from the workspace with env
// overrides applied.
func loadConfig() (*config.Config, error) {
	path := filepath.Join(workspaceDir(), ".deskmate", "config.yaml")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	return cfg, nil
}

// credStore builds the credential store the config points at.
func credStore(cfg *config.Config) (creds.Store, error) {
	if cfg.API.CredentialsFile != "" {
		return creds.NewFileStoreAt(cfg.API.CredentialsFile), nil
	}
	return creds.NewFileStore()
}

// newClient wires up the API client with file-backed credentials and
// console notifications.
func newClient() (*api.Client, creds.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := credStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	sink := notify.NewConsoleSink(os.Stderr)
	client := api.New(cfg.API.BaseURL, cfg.GetTimeout(), store, sink)
	client.OnRefresh(func() {
		refreshCount.Add(1)
		zlog().Debug("credentials refreshed")
	})
	return client, store, nil
}

// tracker opens the local usage tracker. Failures are not fatal: commands
// run fine without usage recording.
func tracker() *usage.Tracker {
	t, err := usage.NewTracker(workspaceDir())
	if err != nil {
		logging.BootError("usage tracker unavailable: %v", err)
		return nil
	}
	return t
}

// record attributes any refreshes the client performed since the previous
// record to this event, then persists.
func record(t *usage.Tracker, e usage.Event) {
	if t == nil {
		return
	}
	e.Refreshes += refreshCount.Swap(0)
	t.Record(e)
	if err := t.Save(); err != nil {
		logging.BootError("failed to save usage: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: nearest .deskmate)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "api-url", "", "backend API base URL override")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	start := time.Now()
	err := rootCmd.Execute()
	logging.Boot("command finished in %v", time.Since(start))
	if err != nil {
		os.Exit(1)
	}
}
