package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shopdesk/internal/audit"
	"shopdesk/internal/classifier"
	"shopdesk/internal/config"
	"shopdesk/internal/dispatch"
	"shopdesk/internal/logging"
	"shopdesk/internal/registry"
	"shopdesk/internal/server"
	"shopdesk/internal/session"
	"shopdesk/internal/specialists"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg *config.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "shopdesk",
	Short: "shopdesk - conversational customer-support backend for online retailers",
	Long: `shopdesk routes free-text customer messages to domain specialists
(product lookup, order status, recommendations, promotions, general help)
with per-session conversation state, bounded retries, confidence-based
escalation, and consent-gated dispatch with audit logging.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Initialize(verbose || cfg.Logging.Debug); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON HTTP API",
	RunE:  runServe,
}

// askCmd runs a single turn from the command line.
var askCmd = &cobra.Command{
	Use:   "ask [session-id] [message]",
	Short: "Process one turn and print the reply",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

// consentCmd manages per-session consent flags.
var consentCmd = &cobra.Command{
	Use:   "consent [grant|revoke] [session-id] [flag]",
	Short: "Grant or revoke a consent flag for a session",
	Args:  cobra.ExactArgs(3),
	RunE:  runConsent,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shopdesk.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(consentCmd)
}

// buildCore wires the orchestration core from config. The returned cleanup
// closes the store and sink and must run on shutdown.
func buildCore(c *config.Config) (*dispatch.Engine, session.Store, func(), error) {
	store, err := buildStore(c)
	if err != nil {
		return nil, nil, nil, err
	}

	sink, err := buildSink(c)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	table, cleanupWatcher, err := buildTable(c)
	if err != nil {
		store.Close()
		sink.Close()
		return nil, nil, nil, err
	}

	intentClassifier := classifier.New(table.profiles, c.Classifier.StickyBonus)
	if table.watch {
		watcher, err := classifier.NewTableWatcher(c.Classifier.TablePath, intentClassifier)
		if err != nil {
			logging.Boot("phrase table watcher unavailable: %v", err)
		} else if err := watcher.Start(); err != nil {
			logging.Boot("phrase table watcher failed to start: %v", err)
		} else {
			cleanupWatcher = watcher.Stop
		}
	}

	reg := registry.New()
	if err := specialists.RegisterDefaults(reg); err != nil {
		store.Close()
		sink.Close()
		return nil, nil, nil, fmt.Errorf("failed to register specialists: %w", err)
	}

	interceptor := audit.NewInterceptor(sink, nil)

	engine := dispatch.NewEngine(dispatch.Config{
		MaxRetries:          c.Dispatch.MaxRetries,
		ConfidenceThreshold: c.Dispatch.ConfidenceThreshold,
		DefaultConfidence:   c.Dispatch.DefaultConfidence,
		HandlerTimeout:      c.GetHandlerTimeout(),
		HandoffMessage:      c.Dispatch.HandoffMessage,
		HistoryLimit:        c.Session.HistoryLimit,
	}, intentClassifier, reg, store, interceptor)

	cleanup := func() {
		if cleanupWatcher != nil {
			cleanupWatcher()
		}
		if err := sink.Close(); err != nil {
			logging.Boot("failed to close audit sink: %v", err)
		}
		if err := store.Close(); err != nil {
			logging.Boot("failed to close session store: %v", err)
		}
	}
	return engine, store, cleanup, nil
}

func buildStore(c *config.Config) (session.Store, error) {
	switch c.Session.Driver {
	case "sqlite":
		return session.NewSQLiteStore(c.Session.DatabasePath, c.Session.HistoryLimit)
	default:
		return session.NewMemoryStore(c.Session.HistoryLimit), nil
	}
}

func buildSink(c *config.Config) (audit.Sink, error) {
	switch c.Audit.Driver {
	case "sqlite":
		return audit.NewSQLiteSink(c.Audit.Path)
	case "memory":
		return audit.NewMemorySink(), nil
	default:
		return audit.NewFileSink(c.Audit.Path)
	}
}

type tableSetup struct {
	profiles []classifier.CategoryProfile
	watch    bool
}

func buildTable(c *config.Config) (tableSetup, func(), error) {
	if c.Classifier.TablePath == "" {
		return tableSetup{}, nil, nil
	}
	profiles, err := classifier.LoadTable(c.Classifier.TablePath)
	if err != nil {
		return tableSetup{}, nil, fmt.Errorf("failed to load phrase table: %w", err)
	}
	return tableSetup{profiles: profiles, watch: c.Classifier.WatchTable}, nil, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, store, cleanup, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	logging.Boot("shopdesk %s serving on %s (session driver=%s, audit driver=%s)",
		cfg.Version, addr, cfg.Session.Driver, cfg.Audit.Driver)

	return server.New(engine, store, addr).Run(ctx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	engine, _, cleanup, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionID := args[0]
	message := ""
	for i, arg := range args[1:] {
		if i > 0 {
			message += " "
		}
		message += arg
	}

	result, err := engine.ProcessTurn(cmd.Context(), sessionID, message, nil)
	if err != nil {
		return err
	}

	fmt.Printf("[%s, confidence %.2f]\n%s\n", result.CategoryUsed, result.Confidence, result.ResponseText)
	if result.Escalated {
		fmt.Println("(escalated to human handling)")
	}
	return nil
}

func runConsent(cmd *cobra.Command, args []string) error {
	action, sessionID, flag := args[0], args[1], args[2]
	if action != "grant" && action != "revoke" {
		return fmt.Errorf("action must be grant or revoke, got %q", action)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	state := store.Load(cmd.Context(), sessionID)
	if state.ComplianceFlags == nil {
		state.ComplianceFlags = make(map[string]bool)
	}
	if action == "grant" {
		state.ComplianceFlags[flag] = true
	} else {
		delete(state.ComplianceFlags, flag)
	}
	if err := store.Save(cmd.Context(), state); err != nil {
		return fmt.Errorf("failed to persist consent: %w", err)
	}

	fmt.Printf("%s %s for session %s\n", action, flag, sessionID)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
