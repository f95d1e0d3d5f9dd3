package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phasegate/internal/guard"
	"github.com/ppiankov/phasegate/internal/taskstore"
)

var (
	flagWorkflow string
	flagAuditLog string
	flagStore    string
	flagTasksDir string
)

var rootCmd = &cobra.Command{
	Use:   "phasegate",
	Short: "Workflow contract enforcement for coding agents",
	Long:  "Binds autonomous coding agents to a declared multi-phase workflow.\nPhase tokens gate tool use, transition gates demand artifacts, and every\ndecision lands in a hash-chained audit log.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagWorkflow, "workflow", "", "Path to workflow YAML (empty uses the built-in default)")
	rootCmd.PersistentFlags().StringVar(&flagAuditLog, "audit-log", defaultAuditPath(), "Path to audit log JSONL file")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "file", "Task store backend (memory|file|sqlite)")
	rootCmd.PersistentFlags().StringVar(&flagTasksDir, "tasks", "", "Task store location (directory for file, database path for sqlite)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultAuditPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "phasegate-audit.jsonl"
	}
	return home + "/.phasegate/audit.jsonl"
}

// openStore builds the task store selected by the persistent flags.
func openStore() (taskstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch flagStore {
	case "memory":
		return taskstore.NewMemoryStore(), noop, nil
	case "file":
		dir := flagTasksDir
		if dir == "" {
			dir = taskstore.DefaultDir()
		}
		st, err := taskstore.NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return st, noop, nil
	case "sqlite":
		if flagTasksDir == "" {
			return nil, nil, errors.New("--tasks <db path> is required with --store sqlite")
		}
		st, err := taskstore.OpenSQL(flagTasksDir)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", flagStore)
	}
}

// newEngine wires an engine from the persistent flags. The returned
// closer shuts both the engine and the store.
func newEngine() (*guard.Engine, func(), error) {
	st, closeStore, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	engine, err := guard.New(guard.Config{
		WorkflowPath: flagWorkflow,
		AuditLogPath: flagAuditLog,
		Store:        st,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	cleanup := func() {
		engine.Close()
		closeStore()
	}
	return engine, cleanup, nil
}
