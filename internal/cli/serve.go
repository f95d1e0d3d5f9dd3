package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/phasegate/internal/guard"
	"github.com/ppiankov/phasegate/internal/mcp"
)

var serveNoWatch bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable hot-reload of the workflow file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP enforcement server on stdio",
	Long:  "Runs phasegate as an MCP server over stdio. The agent runtime connects\nand calls phasegate_claim, phasegate_check_tool, and phasegate_transition.\nThe workflow file is hot-reloaded on change.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Stdout belongs to the MCP transport; all logging goes to stderr.
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	lg, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer lg.Sync()

	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := guard.New(guard.Config{
		WorkflowPath: flagWorkflow,
		AuditLogPath: flagAuditLog,
		Store:        st,
		Logger:       lg,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if !serveNoWatch && flagWorkflow != "" {
		reloader, err := guard.NewReloader(engine, lg)
		if err != nil {
			lg.Warn("hot-reload disabled", zap.Error(err))
		} else {
			go reloader.Run(ctx)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Info("shutting down")
		cancel()
	}()

	srv := mcp.New(engine, lg)
	return srv.Run(ctx)
}
