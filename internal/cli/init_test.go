package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/flow/internal/core"
)

func TestInitCommand_ExplicitPath(t *testing.T) {
	saveGlobals(t)
	dir := filepath.Join(t.TempDir(), "workspace")

	out := mustExecute(t, "init", dir)
	configPath := filepath.Join(dir, core.ConfigFileName)
	if !strings.Contains(out, "Config:  "+configPath) || !strings.Contains(out, filepath.Join(dir, ".flow")) {
		t.Errorf("init output:\n%s", out)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf(".flowconfig not written: %v", err)
	}
	if info, err := os.Stat(filepath.Join(dir, ".flow")); err != nil || !info.IsDir() {
		t.Errorf("data directory not created: %v", err)
	}
}

func TestInitCommand_KeepsExistingConfig(t *testing.T) {
	saveGlobals(t)
	dir := t.TempDir()
	custom := "storage:\n  dir: state\n"
	configPath := filepath.Join(dir, core.ConfigFileName)
	if err := os.WriteFile(configPath, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	mustExecute(t, "init", dir)
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != custom {
		t.Errorf("existing config overwritten:\n%s", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "state")); err != nil {
		t.Errorf("configured data dir not created: %v", err)
	}
}

func TestInitCommand_UsesBasePath(t *testing.T) {
	env := setupEnv(t)
	mustExecute(t, "init")
	if _, err := os.Stat(filepath.Join(env.dir, core.ConfigFileName)); err != nil {
		t.Errorf("config not written to base path: %v", err)
	}
}

func TestInitCommand_NoManager(t *testing.T) {
	saveGlobals(t)
	if _, err := execute(t, "init"); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not initialized error, got %v", err)
	}
}
