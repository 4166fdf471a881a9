package taskmanager

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Log appends Task snapshots to a line-delimited JSON file and can replay
// it to rebuild state on startup. Each line is one Task at one point in
// its lifecycle; the last line for a given ID wins on replay.
type Log struct {
	path string
	file *os.File
}

// DefaultLogPath returns ~/.genobridge/state/tasks.log, creating the
// containing directory if needed.
func DefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".genobridge", "state")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return filepath.Join(dir, "tasks.log"), nil
}

// OpenLog opens (creating if absent) the log at path for appending.
func OpenLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening task log: %w", err)
	}

	return &Log{path: path, file: f}, nil
}

// Append writes one Task snapshot as a JSON line. Each write is a single
// os.File.Write of a complete line, which on local filesystems is atomic
// with respect to concurrent readers replaying the file.
func (l *Log) Append(t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}
	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *Log) Close() error {
	return l.file.Close()
}

// Replay reads every snapshot from path and returns the most recent Task
// per ID. Tasks left non-terminal by a prior process (the log's last
// record for that ID is still running/queued/pending) are returned marked
// failed(kind=Interrupted), matching the restart contract in §4.7.
func Replay(path string) (map[string]*Task, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Task{}, nil
		}
		return nil, fmt.Errorf("opening task log: %w", err)
	}
	defer f.Close()

	latest := make(map[string]*Task)

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	for scanner.Scan() {
		var t Task
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			continue
		}
		latest[t.ID] = &t
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading task log: %w", err)
	}

	for _, t := range latest {
		if !t.State.Terminal() {
			t.State = StateFailed
			t.ErrorKind = "Interrupted"
			t.ErrorMsg = "process restarted while task was in flight"
		}
	}

	return latest, nil
}
