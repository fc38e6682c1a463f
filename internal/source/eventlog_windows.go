//go:build windows

package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/coffersTech/eventscope/internal/config"
)

// EventLog reads the local system event log through PowerShell's
// Get-WinEvent. One query shells out once per channel and pages the
// collected payload lines through a cursor, so the reader sees the same
// cursor semantics as the archive source.
type EventLog struct {
	// Timeout bounds a single PowerShell invocation.
	Timeout time.Duration
	// MaxEvents caps how many events one collect may pull from a
	// channel. Zero means unbounded.
	MaxEvents int
}

// NewEventLog returns a live event log source bounded by the default
// per-channel record cap.
func NewEventLog() *EventLog {
	return &EventLog{
		Timeout:   60 * time.Second,
		MaxEvents: config.DefaultMaxRecordsPerChannel,
	}
}

// Query implements Querier.
func (e *EventLog) Query(channel string, pred Predicate) (Cursor, error) {
	lines, err := e.collect(channel, pred)
	if err != nil {
		return nil, err
	}
	return &eventLogCursor{lines: lines}, nil
}

// Channels implements Catalog.
func (e *EventLog) Channels() ([]string, error) {
	out, err := e.run(`Get-WinEvent -ListLog * -ErrorAction SilentlyContinue |
 Where-Object { $_.RecordCount -gt 0 } |
 ForEach-Object { $_.LogName }`)
	if err != nil {
		return nil, classifyEventLogError(err)
	}
	var channels []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			channels = append(channels, name)
		}
	}
	return channels, nil
}

// collect runs Get-WinEvent for one channel, emitting one compact JSON
// payload per line in the schema PayloadParser expects. MaxEvents caps
// the collection inside PowerShell so a huge channel cannot be slurped
// past the per-channel cap before the cursor pages it.
func (e *EventLog) collect(channel string, pred Predicate) ([][]byte, error) {
	script := eventLogScript(eventLogFilter(channel, pred), e.MaxEvents)

	out, err := e.run(script)
	if err != nil {
		return nil, classifyEventLogError(err)
	}

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
	}
	return lines, sc.Err()
}

func (e *EventLog) run(script string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "powershell.exe",
		"-NoProfile", "-NonInteractive", "-Command", script)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimedOut
		}
		return nil, fmt.Errorf("powershell: %w: %s", err, errOut.String())
	}
	return out.Bytes(), nil
}

// classifyEventLogError maps PowerShell failures onto the transient
// sentinels so the reader's retry policy applies.
func classifyEventLogError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access is denied") || strings.Contains(msg, "unauthorizedaccess"):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	case strings.Contains(msg, "service is unavailable") || strings.Contains(msg, "busy"):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case strings.Contains(msg, "shutting down"):
		return fmt.Errorf("%w: %v", ErrShutdownInProgress, err)
	default:
		return err
	}
}

type eventLogCursor struct {
	lines [][]byte
	pos   int
}

// Next implements Cursor. The lines are already collected, so wait is
// unused.
func (c *eventLogCursor) Next(max int, _ time.Duration) ([]Handle, error) {
	if c.pos >= len(c.lines) {
		return nil, ErrNoMoreItems
	}
	end := c.pos + max
	if end > len(c.lines) {
		end = len(c.lines)
	}
	handles := make([]Handle, 0, end-c.pos)
	for _, line := range c.lines[c.pos:end] {
		handles = append(handles, archiveHandle(line))
	}
	c.pos = end
	return handles, nil
}

func (c *eventLogCursor) Close() error { return nil }
