package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phasegate/internal/anonymize"
	"github.com/ppiankov/phasegate/internal/audit"
	"github.com/ppiankov/phasegate/internal/workflow"
)

var (
	exportSalt string
	exportOut  string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportSalt, "salt", "", "Anonymization salt (defaults to PHASEGATE_TELEMETRY_SALT)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "Output file (- for stdout)")
}

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export the audit log as anonymized telemetry",
	Long:  "Reads the audit log, strips identifying fields through the telemetry\nanonymizer, and writes JSONL. Actor and task identifiers come out as\nsalted hashes; only phases declared in the workflow survive.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	salt := exportSalt
	if salt == "" {
		salt = os.Getenv("PHASEGATE_TELEMETRY_SALT")
	}
	if salt == "" {
		return errors.New("anonymization salt required: set --salt or PHASEGATE_TELEMETRY_SALT")
	}

	def, err := workflow.Load(flagWorkflow)
	if err != nil {
		return err
	}
	anon, err := anonymize.New([]byte(salt), def.PhaseIDs())
	if err != nil {
		return err
	}

	entries, corrupt, err := audit.ReadAll(auditPathArg(args))
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	for _, line := range corrupt {
		fmt.Fprintf(os.Stderr, "warning: skipping unparseable entry at line %d\n", line)
	}

	out := os.Stdout
	if exportOut != "-" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		line, err := json.Marshal(anon.Anonymize(record))
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}
