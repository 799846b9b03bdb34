package sched

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

var traceHeader = []string{"time_ms", "event", "task_id", "priority", "expiration_ms", "did_timeout", "error"}

// CSVTrace writes one row per status event.
type CSVTrace struct {
	w      *csv.Writer
	closer io.Closer
	err    error
}

// NewCSVTrace writes the header to w and returns a trace ready to Observe.
func NewCSVTrace(w io.Writer) *CSVTrace {
	t := &CSVTrace{w: csv.NewWriter(w)}
	t.write(traceHeader)
	return t
}

// Observe is an Observer.
func (t *CSVTrace) Observe(ev StatusEvent) {
	rec := []string{
		formatMillis(ev.Time),
		ev.Kind.String(),
		"",
		"",
		"",
		strconv.FormatBool(ev.DidTimeout),
		"",
	}
	if ev.TaskID != 0 {
		rec[2] = strconv.FormatUint(uint64(ev.TaskID), 10)
		rec[3] = ev.Priority.String()
		rec[4] = formatMillis(ev.Expiration)
	}
	if ev.Err != nil {
		rec[6] = ev.Err.Error()
	}
	t.write(rec)
}

// Err returns the first write error, if any.
func (t *CSVTrace) Err() error { return t.err }

// Close flushes the trace and closes the underlying file, if the trace owns it.
func (t *CSVTrace) Close() error {
	t.w.Flush()
	if t.err == nil {
		t.err = t.w.Error()
	}
	if t.closer != nil {
		if err := t.closer.Close(); err != nil && t.err == nil {
			t.err = err
		}
		t.closer = nil
	}
	return t.err
}

func (t *CSVTrace) write(rec []string) {
	if t.err != nil {
		return
	}
	if err := t.w.Write(rec); err != nil {
		t.err = err
		return
	}
	t.w.Flush()
	t.err = t.w.Error()
}

func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
}

// EnableCSVLogging opens path and records every subsequent event to it as CSV.
// Close flushes and closes the file.
func (s *Scheduler) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	t := NewCSVTrace(f)
	t.closer = f
	if err := t.Err(); err != nil {
		f.Close()
		return err
	}
	s.observers = append(s.observers, t.Observe)
	s.closers = append(s.closers, t)
	return nil
}
