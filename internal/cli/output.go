package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/pkg/models"
)

var (
	openStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	inProgressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	reviewStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	closedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func statusStyle(s models.TaskStatus) lipgloss.Style {
	switch s {
	case models.StatusOpen:
		return openStyle
	case models.StatusInProgress:
		return inProgressStyle
	case models.StatusReview:
		return reviewStyle
	case models.StatusClosed:
		return closedStyle
	}
	return lipgloss.NewStyle()
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting output as JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printTaskTable prints one row per task. Status is padded before styling so
// escape codes do not break the column widths.
func printTaskTable(w io.Writer, tasks []models.Task) {
	fmt.Fprintf(w, "  %-12s %-3s %-11s %-8s %s\n", "ID", "PRI", "STATUS", "TYPE", "TITLE")
	for _, t := range tasks {
		status := statusStyle(t.Status).Render(fmt.Sprintf("%-11s", t.Status))
		fmt.Fprintf(w, "  %-12s P%-2d %s %-8s %s\n", t.ID, t.Priority, status, t.Type, t.Title)
	}
}

func printTask(w io.Writer, t models.Task) {
	fmt.Fprintf(w, "%s  %s\n", t.ID, t.Title)
	fmt.Fprintf(w, "  %-12s %s\n", "status:", statusStyle(t.Status).Render(string(t.Status)))
	fmt.Fprintf(w, "  %-12s %s\n", "type:", t.Type)
	fmt.Fprintf(w, "  %-12s P%d\n", "priority:", t.Priority)
	if t.Size != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "size:", t.Size)
	}
	fmt.Fprintf(w, "  %-12s %s\n", "complexity:", t.EffectiveComplexity())
	if len(t.Labels) > 0 {
		fmt.Fprintf(w, "  %-12s %s\n", "labels:", strings.Join(t.Labels, ", "))
	}
	if t.EpicID != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "epic:", t.EpicID)
	}
	if len(t.BlockedBy) > 0 {
		fmt.Fprintf(w, "  %-12s %s\n", "blocked by:", strings.Join(t.BlockedBy, ", "))
	}
	if t.Reason != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "reason:", t.Reason)
	}
	if t.CommitHash != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "commit:", t.CommitHash)
	}
	if t.Consumed {
		line := "yes"
		if t.ConsumePID > 0 {
			line += fmt.Sprintf(" (pid %d)", t.ConsumePID)
		}
		if t.ConsumedExitCode != nil {
			line += fmt.Sprintf(", exit %d", *t.ConsumedExitCode)
		}
		fmt.Fprintf(w, "  %-12s %s\n", "consumed:", line)
	}
	fmt.Fprintf(w, "  %-12s %s\n", "created:", t.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  %-12s %s\n", "updated:", t.UpdatedAt.Format("2006-01-02 15:04"))
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
}

// reportBatch prints each outcome of a batch operation and returns the joined
// failures so the command exits non-zero when any item failed.
func reportBatch(w io.Writer, verb string, result core.BatchResult) error {
	if jsonOutput {
		type failure struct {
			Input string `json:"input"`
			Error string `json:"error"`
		}
		out := struct {
			Succeeded []models.Task `json:"succeeded"`
			Failed    []failure     `json:"failed"`
		}{Succeeded: result.Succeeded}
		for _, f := range result.Failed {
			out.Failed = append(out.Failed, failure{Input: f.Input, Error: f.Err.Error()})
		}
		if err := writeJSON(w, out); err != nil {
			return err
		}
		return result.Err()
	}

	for _, t := range result.Succeeded {
		fmt.Fprintf(w, "%s %s: %s\n", verb, t.ID, t.Title)
	}
	for _, f := range result.Failed {
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("failed"), f.Input+": "+f.Err.Error())
	}
	return result.Err()
}
