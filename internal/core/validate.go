package core

import (
	"strings"

	"github.com/valter-silva-au/flow/pkg/models"
)

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Value: `""`, Reason: "must not be empty"}
	}
	return nil
}

func validatePriority(p int) error {
	if p < models.MinPriority || p > models.MaxPriority {
		return &ValidationError{Field: "priority", Value: p, Reason: "must be between 0 and 4"}
	}
	return nil
}

func validateTaskType(tt models.TaskType) error {
	for _, v := range models.TaskTypes {
		if v == tt {
			return nil
		}
	}
	return &ValidationError{Field: "type", Value: tt, Reason: "must be one of " + joinValues(models.TaskTypes)}
}

func validateSize(s models.Size) error {
	if s == "" {
		return nil
	}
	for _, v := range models.Sizes {
		if v == s {
			return nil
		}
	}
	return &ValidationError{Field: "size", Value: s, Reason: "must be one of " + joinValues(models.Sizes)}
}

func validateComplexity(c models.Complexity) error {
	if c == "" {
		return nil
	}
	for _, v := range models.Complexities {
		if v == c {
			return nil
		}
	}
	return &ValidationError{Field: "complexity", Value: c, Reason: "must be one of " + joinValues(models.Complexities)}
}

func validateStatus(s models.TaskStatus) error {
	for _, v := range models.TaskStatuses {
		if v == s {
			return nil
		}
	}
	return &ValidationError{Field: "status", Value: s, Reason: "must be one of " + joinValues(models.TaskStatuses)}
}

// normalizeLabels trims labels and drops empties and duplicates, keeping the
// first occurrence so display order follows insertion order.
func normalizeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	var out []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
