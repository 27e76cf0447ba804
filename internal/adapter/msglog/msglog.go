// Package msglog appends one human-readable line per routed record to the
// operator-facing message log and serves bounded tail reads for the admin
// console. Rotation keeps the file small on long-running relays.
package msglog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Log struct {
	mu   sync.Mutex
	path string
	out  *lumberjack.Logger
}

func New(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Log{
		path: path,
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    20, // MB
			MaxBackups: 3,
		},
	}, nil
}

// Record appends the routed-record line. to is "ALL" for broadcasts.
func (l *Log) Record(from, to, body string) {
	if to == "" {
		to = "ALL"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[MSG] [FROM:%s] -> [TO:%s]: %s\n", from, to, body)
}

// Tail returns the last n lines of the current log file. A missing file is
// not an error; it simply yields no lines.
func (l *Log) Tail(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func (l *Log) Close() error { return l.out.Close() }
