package testutil

import (
	"sync"

	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
)

type LogEntry struct {
	Level  out.LogLevel
	Module string
	Event  string
	Fields out.LogFields
}

type logSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// RecordingLogger collects log entries in memory so tests can assert on events.
type RecordingLogger struct {
	sink   *logSink
	module string
	fields out.LogFields
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{sink: &logSink{}, fields: out.LogFields{}}
}

func (l *RecordingLogger) WithFields(fields out.LogFields) out.LoggerPort {
	merged := out.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &RecordingLogger{sink: l.sink, module: l.module, fields: merged}
}

func (l *RecordingLogger) WithModule(module string) out.LoggerPort {
	return &RecordingLogger{sink: l.sink, module: module, fields: l.fields}
}

func (l *RecordingLogger) Debug(event string, fields out.LogFields) {
	l.record(out.LogLevelDebug, event, fields)
}

func (l *RecordingLogger) Info(event string, fields out.LogFields) {
	l.record(out.LogLevelInfo, event, fields)
}

func (l *RecordingLogger) Warn(event string, fields out.LogFields) {
	l.record(out.LogLevelWarn, event, fields)
}

func (l *RecordingLogger) Error(event string, fields out.LogFields) {
	l.record(out.LogLevelError, event, fields)
}

func (l *RecordingLogger) record(level out.LogLevel, event string, fields out.LogFields) {
	merged := out.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, LogEntry{
		Level:  level,
		Module: l.module,
		Event:  event,
		Fields: merged,
	})
}

func (l *RecordingLogger) Entries() []LogEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return append([]LogEntry(nil), l.sink.entries...)
}

// HasEvent reports whether an entry with the given event name was logged.
func (l *RecordingLogger) HasEvent(event string) bool {
	for _, e := range l.Entries() {
		if e.Event == event {
			return true
		}
	}
	return false
}
