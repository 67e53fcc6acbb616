package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valter-silva-au/flow/pkg/models"
)

// IssueKind classifies a store integrity problem.
type IssueKind string

const (
	IssueCycle            IssueKind = "cycle"
	IssueDanglingBlocker  IssueKind = "dangling_blocker"
	IssueSelfBlocker      IssueKind = "self_blocker"
	IssueDanglingEpicLink IssueKind = "dangling_epic_link"
)

// Issue is one integrity problem found by Diagnose.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	TaskID  string    `json:"task_id,omitempty"`
	Ref     string    `json:"ref,omitempty"`
	Path    []string  `json:"path,omitempty"`
	Message string    `json:"message"`
}

// Diagnose checks data that every core operation keeps consistent but that a
// hand edit of the store files can break.
func Diagnose(tasks []models.Task, epics []models.Epic) []Issue {
	index := indexTasks(tasks)
	epicIDs := make(map[string]bool, len(epics))
	for _, e := range epics {
		epicIDs[e.ID] = true
	}

	sorted := append([]models.Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var issues []Issue
	for _, t := range sorted {
		for _, b := range t.BlockedBy {
			switch {
			case b == t.ID:
				issues = append(issues, Issue{
					Kind: IssueSelfBlocker, TaskID: t.ID, Ref: b,
					Message: fmt.Sprintf("task %s lists itself as a blocker", t.ID),
				})
			case !hasTask(index, b):
				issues = append(issues, Issue{
					Kind: IssueDanglingBlocker, TaskID: t.ID, Ref: b,
					Message: fmt.Sprintf("task %s is blocked by missing task %s", t.ID, b),
				})
			}
		}
		if t.EpicID != "" && !epicIDs[t.EpicID] {
			issues = append(issues, Issue{
				Kind: IssueDanglingEpicLink, TaskID: t.ID, Ref: t.EpicID,
				Message: fmt.Sprintf("task %s is linked to missing epic %s", t.ID, t.EpicID),
			})
		}
	}

	for _, cycle := range FindCycles(tasks) {
		if len(cycle) == 2 {
			continue // self-loops are reported above
		}
		issues = append(issues, Issue{
			Kind:    IssueCycle,
			TaskID:  cycle[0],
			Path:    cycle,
			Message: "dependency cycle: " + strings.Join(cycle, " -> "),
		})
	}
	return issues
}

func hasTask(index map[string]models.Task, id string) bool {
	_, ok := index[id]
	return ok
}
