package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/valter-silva-au/flow/pkg/models"
)

// RunsFile is the JSONL run history file inside the data directory.
const RunsFile = "runs.jsonl"

// JSONLRunLog is an append-only run history stored one JSON object per line.
type JSONLRunLog struct {
	path string
	mu   sync.Mutex
}

// NewJSONLRunLog creates a run log at path. The file is created on first append.
func NewJSONLRunLog(path string) *JSONLRunLog {
	return &JSONLRunLog{path: path}
}

// AppendRun writes run as a single line. O_APPEND keeps concurrent writers
// from interleaving within a line.
func (l *JSONLRunLog) AppendRun(run models.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshalling run: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing run: %w", err)
	}
	return f.Close()
}

// ListRuns returns the runs for taskID ordered by start time. An empty taskID
// returns every run.
func (l *JSONLRunLog) ListRuns(taskID string) ([]models.Run, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var runs []models.Run
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var run models.Run
		if err := json.Unmarshal(line, &run); err != nil {
			continue // skip malformed lines
		}
		if taskID == "" || run.TaskID == taskID {
			runs = append(runs, run)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning run log: %w", err)
	}

	sortRuns(runs)
	return runs, nil
}

func sortRuns(runs []models.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
}
