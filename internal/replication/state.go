// Package replication downloads OsmChange diffs from a replication server
// and tracks which sequence was encoded last.
package replication

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// State is the content of a replication state.txt file
type State struct {
	Sequence  int64
	Timestamp time.Time
}

func (s State) String() string {
	return fmt.Sprintf("sequence %d at %s", s.Sequence, s.Timestamp.Format(time.RFC3339))
}

// ParseState reads the sequenceNumber and timestamp keys of a state file.
// Colons in the timestamp may be escaped as "\:".
func ParseState(r io.Reader) (*State, error) {
	var (
		state  State
		hasSeq bool
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		switch strings.TrimSpace(key) {
		case "sequenceNumber":
			seq, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid sequence number: %w", err)
			}
			state.Sequence = seq
			hasSeq = true
		case "timestamp":
			value = strings.ReplaceAll(strings.TrimSpace(value), `\:`, ":")
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp %q: %w", value, err)
			}
			state.Timestamp = t
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading state: %w", err)
	}
	if !hasSeq {
		return nil, fmt.Errorf("state has no sequenceNumber")
	}
	return &state, nil
}

// ReadStateFile parses a state file from disk
func ReadStateFile(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseState(f)
}

// WriteState writes s in state.txt form
func WriteState(w io.Writer, s *State) error {
	ts := strings.ReplaceAll(s.Timestamp.UTC().Format(time.RFC3339), ":", `\:`)
	_, err := fmt.Fprintf(w, "# georender-go replication state\nsequenceNumber=%d\ntimestamp=%s\n", s.Sequence, ts)
	return err
}

// WriteStateFile replaces path with s; the old file survives a failed write
func WriteStateFile(path string, s *State) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteState(f, s); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// SequencePath splits a sequence number into the AAA/BBB/CCC directory
// layout replication servers use
func SequencePath(seq int64) string {
	return fmt.Sprintf("%03d/%03d/%03d", seq/1000000, (seq/1000)%1000, seq%1000)
}
