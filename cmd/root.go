package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ghcrm/internal/apiclient"
	"github.com/joescharf/ghcrm/internal/dashboard"
	"github.com/joescharf/ghcrm/internal/output"
	"github.com/joescharf/ghcrm/internal/service"
	"github.com/joescharf/ghcrm/internal/session"
	"github.com/joescharf/ghcrm/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	navigator *sessionNavigator

	dataStore    store.Store
	sessionStore *session.Store
	apiService   *service.Service

	verbose bool
	dryRun  bool
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// logOutput is where library logs go. The dashboard points it at a file so
// log lines do not tear the full-screen UI.
var logOutput = &switchWriter{w: os.Stderr}

var rootCmd = &cobra.Command{
	Use:   "ghcrm",
	Short: "Track GitHub repositories from the terminal",
	Long: `ghcrm is a client for the GitHub projects CRM API.
It signs you in, lists the repositories you track with their stars,
forks and open issues, and lets you add, refresh and remove them.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/ghcrm/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "ghcrm")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("GHCRM")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key's default via viper.SetDefault().
func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "ghcrm")

	viper.SetDefault("api_url", apiclient.DefaultBaseURL)
	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "ghcrm.db"))
	viper.SetDefault("http.timeout", "15s")
	viper.SetDefault("dashboard.default_repo", dashboard.DefaultRepoPath)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	logger = newLogger(logOutput)
	navigator = &sessionNavigator{ui: ui}

	// Store, session and API client are opened lazily so config/version
	// commands run without a database.
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// rootRun handles `ghcrm` with no subcommand: open the dashboard when signed
// in, otherwise show help.
func rootRun(cmd *cobra.Command) error {
	svc, err := getService()
	if err != nil || !svc.IsAuthenticated() {
		ui.Info("Not logged in. Run 'ghcrm login' or 'ghcrm signup' to get started.")
		fmt.Fprintln(ui.Out)
		return cmd.Help()
	}
	return dashboardRun(cmd.Context())
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(ctxOrBackground(rootCmd.Context())); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getSession returns the credential store backed by the shared store.
func getSession() (*session.Store, error) {
	if sessionStore != nil {
		return sessionStore, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	sess, err := session.New(ctxOrBackground(rootCmd.Context()), s, logger)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	sessionStore = sess
	return sessionStore, nil
}

// getService returns the API facade. Every command shares one request
// client, so expired sessions are handled the same way everywhere.
func getService() (*service.Service, error) {
	if apiService != nil {
		return apiService, nil
	}
	sess, err := getSession()
	if err != nil {
		return nil, err
	}

	client, err := apiclient.New(viper.GetString("api_url"), sess,
		apiclient.WithTimeout(viper.GetDuration("http.timeout")),
		apiclient.WithNavigator(navigator),
		apiclient.WithLogger(logger),
		apiclient.WithUserAgent("ghcrm/"+buildVersion),
	)
	if err != nil {
		return nil, err
	}
	apiService = service.New(client, sess, logger)

	ui.VerboseLog("API: %s", client.BaseURL())
	return apiService, nil
}

// newController builds a dashboard controller over the shared facade.
func newController() (*dashboard.Controller, error) {
	svc, err := getService()
	if err != nil {
		return nil, err
	}
	return dashboard.New(svc,
		dashboard.WithLogger(logger),
		dashboard.WithDefaultInput(viper.GetString("dashboard.default_repo")),
	), nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// resetDeps drops the lazily opened dependencies. Tests use it between runs.
func resetDeps() {
	if dataStore != nil {
		_ = dataStore.Close()
	}
	dataStore = nil
	sessionStore = nil
	apiService = nil
}

// switchWriter is an io.Writer whose destination can be swapped while
// loggers built on it stay in use.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// swap redirects writes to w until restore is called.
func (s *switchWriter) swap(w io.Writer) (restore func()) {
	s.mu.Lock()
	prev := s.w
	s.w = w
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.w = prev
		s.mu.Unlock()
	}
}
