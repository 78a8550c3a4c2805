package logs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	maxLineSize = 1024 * 1024

	// idleFlush is how long a pending entry waits for continuation lines
	// before it is emitted. Followed streams can go quiet after the last
	// statement.
	idleFlush = 200 * time.Millisecond
)

// IsContinuation reports whether line extends the previous entry. Both
// PostgreSQL and multi-line application loggers indent continuation lines.
func IsContinuation(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// ScanEntries reads r line by line, folds continuation lines into the entry
// they belong to, and calls fn for each parsed entry. Lines longer than
// maxLineSize are dropped. It stops at EOF, when ctx is cancelled, or when fn
// returns an error.
func ScanEntries(ctx context.Context, r io.Reader, fn func(*LogEntry) error) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readLines(r, lines, readErr, done)

	var pending strings.Builder
	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		entry := ParseLogLine(pending.String())
		pending.Reset()
		return fn(entry)
	}

	idle := time.NewTimer(idleFlush)
	idle.Stop()
	defer idle.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-idle.C:
			if err := flush(); err != nil {
				return err
			}

		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read log stream: %w", err)
				}
				return flush()
			}

			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}

			if pending.Len() > 0 && IsContinuation(line) {
				pending.WriteString("\n")
				pending.WriteString(line)
			} else {
				if err := flush(); err != nil {
					return err
				}
				pending.WriteString(line)
			}
			idle.Reset(idleFlush)
		}
	}
}

// readLines sends each line of r to lines and closes it at EOF or on error.
// The read error, if any, is sent to errc before lines is closed.
func readLines(r io.Reader, lines chan<- string, errc chan<- error, done <-chan struct{}) {
	defer close(lines)

	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	skipping := false

	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			errc <- err
			return
		}

		if !skipping {
			if len(buf)+len(chunk) > maxLineSize {
				skipping = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if isPrefix {
			continue
		}
		if skipping {
			slog.Warn("[logs] skipped oversized line", "limit", maxLineSize)
			skipping = false
			continue
		}

		line := string(buf)
		buf = buf[:0]
		select {
		case lines <- line:
		case <-done:
			return
		}
	}
}
