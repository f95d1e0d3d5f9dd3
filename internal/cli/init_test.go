package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/phasegate/internal/workflow"
)

func TestInitWritesLoadableWorkflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	initForce = false

	if err := runInit(initCmd, []string{path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	def, err := workflow.Load(path)
	if err != nil {
		t.Fatalf("generated workflow must load: %v", err)
	}
	if def.FirstPhase().ID != "PLAN" {
		t.Fatalf("unexpected first phase %q", def.FirstPhase().ID)
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}
	initForce = false

	if err := runInit(initCmd, []string{path}); err == nil {
		t.Fatal("expected overwrite refusal")
	}

	initForce = true
	defer func() { initForce = false }()
	if err := runInit(initCmd, []string{path}); err != nil {
		t.Fatalf("forced init: %v", err)
	}
	if _, err := workflow.Load(path); err != nil {
		t.Fatalf("forced init must write a loadable workflow: %v", err)
	}
}
