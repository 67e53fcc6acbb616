package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/pkg/models"
)

type completionFunc func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)

// completeTaskIDs returns a completion function that lists task IDs,
// optionally filtered to exclude certain statuses.
func completeTaskIDs(excludeStatuses ...models.TaskStatus) completionFunc {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if TaskMgr == nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		tasks, err := TaskMgr.ListTasks(core.TaskFilter{})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		exclude := make(map[models.TaskStatus]bool)
		for _, s := range excludeStatuses {
			exclude[s] = true
		}

		var ids []string
		for _, task := range tasks {
			if exclude[task.Status] {
				continue
			}
			if strings.HasPrefix(task.ID, toComplete) {
				ids = append(ids, task.ID+"\t"+string(task.Status)+": "+task.Title)
			}
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

func completeEpicIDs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if EpicMgr == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	views, err := EpicMgr.ListEpics()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var ids []string
	for _, v := range views {
		if strings.HasPrefix(v.Epic.ID, toComplete) {
			ids = append(ids, v.Epic.ID+"\t"+v.Epic.Title)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

func completeBacklogIDs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if BacklogMgr == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	items, err := BacklogMgr.ListItems()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var ids []string
	for _, item := range items {
		if strings.HasPrefix(item.ID, toComplete) {
			ids = append(ids, item.ID+"\t"+item.Title)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeValues offers a fixed set of enum values.
func completeValues[T ~string](values []T) completionFunc {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = string(v)
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

func completePriorities(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	labels := []string{"Critical", "High", "Medium", "Low", "Backlog"}
	out := make([]string, 0, models.MaxPriority-models.MinPriority+1)
	for p := models.MinPriority; p <= models.MaxPriority; p++ {
		out = append(out, fmt.Sprintf("%d\t%s", p, labels[p]))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// registerTaskFlagCompletions registers completion functions for whichever
// task attribute flags the command defines.
func registerTaskFlagCompletions(cmd *cobra.Command) {
	funcs := map[string]completionFunc{
		"type":       completeValues(models.TaskTypes),
		"size":       completeValues(models.Sizes),
		"complexity": completeValues(models.Complexities),
		"status":     completeValues(models.TaskStatuses),
		"priority":   completePriorities,
		"epic":       completeEpicIDs,
		"blocked-by": completeTaskIDs(models.StatusClosed),
	}
	for name, fn := range funcs {
		if cmd.Flags().Lookup(name) == nil {
			continue
		}
		_ = cmd.RegisterFlagCompletionFunc(name, fn)
	}
}
