package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phasegate/internal/audit"
	"github.com/ppiankov/phasegate/internal/secret"
	"github.com/ppiankov/phasegate/internal/workflow"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "phasegate binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "phasegate binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Workflow definition.
	def, err := workflow.Load(flagWorkflow)
	if err != nil {
		checks = append(checks, checkResult{
			label:  "workflow",
			ok:     false,
			detail: err.Error(),
			fix:    "phasegate init <path> and edit it",
		})
	} else {
		source := flagWorkflow
		if source == "" {
			source = "built-in default"
		}
		checks = append(checks, checkResult{
			label:  "workflow",
			ok:     true,
			detail: fmt.Sprintf("%s (%s, %d phases, %s mode)", source, def.Name, len(def.PhaseIDs()), def.Mode),
		})
	}

	// 3. Signing secret.
	if def != nil && def.TokensEnabled {
		if def.SecretRef == "" {
			checks = append(checks, checkResult{
				label:  "signing secret",
				ok:     false,
				detail: "phase tokens enabled but no secret reference declared",
				fix:    "set enforcement.phase_tokens.secret in the workflow file",
			})
		} else if _, err := secret.Resolve(def.SecretRef); err != nil {
			checks = append(checks, checkResult{
				label:  "signing secret",
				ok:     false,
				detail: err.Error(),
				fix:    fmt.Sprintf("make %s resolvable", def.SecretRef),
			})
		} else {
			checks = append(checks, checkResult{
				label:  "signing secret",
				ok:     true,
				detail: def.SecretRef,
			})
		}
	}

	// 4. Audit log chain.
	if _, err := os.Stat(flagAuditLog); err != nil {
		checks = append(checks, checkResult{
			label:  "audit log",
			ok:     true,
			detail: "not created yet",
		})
	} else if result := audit.VerifyChain(flagAuditLog); result.Valid {
		checks = append(checks, checkResult{
			label:  "audit log",
			ok:     true,
			detail: fmt.Sprintf("%s (%d entries, chain intact)", flagAuditLog, result.Entries),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "audit log",
			ok:     false,
			detail: fmt.Sprintf("chain broken at line %d: %s", result.ErrorLine, result.Error),
		})
	}

	// 5. Task store.
	if st, closeStore, err := openStore(); err != nil {
		checks = append(checks, checkResult{
			label:  "task store",
			ok:     false,
			detail: err.Error(),
		})
	} else {
		tasks, listErr := st.List()
		closeStore()
		if listErr != nil {
			checks = append(checks, checkResult{
				label:  "task store",
				ok:     false,
				detail: listErr.Error(),
			})
		} else {
			checks = append(checks, checkResult{
				label:  "task store",
				ok:     true,
				detail: fmt.Sprintf("%s (%d tasks)", flagStore, len(tasks)),
			})
		}
	}

	// Print results.
	hasFailures := false
	for _, c := range checks {
		mark := "✓" // ✓
		if !c.ok {
			mark = "✗" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-18s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}
