package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/pkg/models"
)

func TestCompletionCommand_DisablesDefault(t *testing.T) {
	if !rootCmd.CompletionOptions.DisableDefaultCmd {
		t.Error("expected cobra's default completion command to be disabled")
	}
	if findCommand(rootCmd, "completion") == nil {
		t.Error("completion command not registered on root")
	}
}

func TestCompletionCommand_Generate(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out := mustExecute(t, "completion", shell)
			if !strings.Contains(out, "flow") {
				t.Errorf("%s script does not mention flow", shell)
			}
		})
	}
}

func TestCompletionCommand_UnsupportedShell(t *testing.T) {
	if _, err := execute(t, "completion", "tcsh"); err == nil || !strings.Contains(err.Error(), "unsupported shell") {
		t.Errorf("expected unsupported shell error, got %v", err)
	}
}

func TestCompletionCommand_Install(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	out := mustExecute(t, "completion", "fish", "--install")
	target := filepath.Join(home, ".config", "fish", "completions", "flow.fish")
	if !strings.Contains(out, target) {
		t.Errorf("install output:\n%s", out)
	}
	data, err := os.ReadFile(target)
	if err != nil || len(data) == 0 {
		t.Errorf("completion file not written: %v", err)
	}

	if _, err := execute(t, "completion", "powershell", "--install"); err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("powershell install: %v", err)
	}
}

func TestCompleteTaskIDs(t *testing.T) {
	setupEnv(t)
	open := createTask(t, "open one")
	closed := createTask(t, "closed one")
	mustExecute(t, "task", "done", closed)

	ids, directive := completeTaskIDs(models.StatusClosed)(&cobra.Command{}, nil, "f-")
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("directive = %d", directive)
	}
	if len(ids) != 1 || !strings.HasPrefix(ids[0], open+"\topen: open one") {
		t.Errorf("ids = %v", ids)
	}

	all, _ := completeTaskIDs()(&cobra.Command{}, nil, "")
	if len(all) != 2 {
		t.Errorf("unfiltered ids = %v", all)
	}
}

func TestCompleteIDs_NilManagers(t *testing.T) {
	saveGlobals(t)
	for name, fn := range map[string]completionFunc{
		"task":    completeTaskIDs(),
		"epic":    completeEpicIDs,
		"backlog": completeBacklogIDs,
	} {
		ids, directive := fn(&cobra.Command{}, nil, "")
		if ids != nil || directive != cobra.ShellCompDirectiveNoFileComp {
			t.Errorf("%s: got %v, %d", name, ids, directive)
		}
	}
}

func TestCompleteEpicAndBacklogIDs(t *testing.T) {
	setupEnv(t)
	mustExecute(t, "epic", "create", "Search")
	mustExecute(t, "backlog", "add", "Export")

	epics, _ := completeEpicIDs(&cobra.Command{}, nil, "e-")
	if len(epics) != 1 || !strings.HasSuffix(epics[0], "\tSearch") {
		t.Errorf("epic completions = %v", epics)
	}
	items, _ := completeBacklogIDs(&cobra.Command{}, nil, "b-")
	if len(items) != 1 || !strings.HasSuffix(items[0], "\tExport") {
		t.Errorf("backlog completions = %v", items)
	}
}

func TestCompletePriorities(t *testing.T) {
	got, _ := completePriorities(&cobra.Command{}, nil, "")
	if len(got) != models.MaxPriority-models.MinPriority+1 || got[0] != "0\tCritical" {
		t.Errorf("priorities = %v", got)
	}
}

func TestRegisterTaskFlagCompletions(t *testing.T) {
	for _, name := range []string{"type", "priority", "size", "complexity", "epic", "blocked-by"} {
		if _, ok := taskCreateCmd.GetFlagCompletionFunc(name); !ok {
			t.Errorf("no completion registered for --%s on task create", name)
		}
	}
	if _, ok := taskListCmd.GetFlagCompletionFunc("status"); !ok {
		t.Error("no completion registered for --status on task list")
	}
}
