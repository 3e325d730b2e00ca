package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[37m"
)

type ConsoleLogger struct {
	defaultFields out.LogFields
	module        string
	location      *time.Location
	minLevel      out.LogLevel
	w             io.Writer
	mu            *sync.Mutex
}

func NewConsoleLogger(timezone string, minLevel out.LogLevel) (*ConsoleLogger, error) {
	return NewConsoleLoggerTo(os.Stdout, timezone, minLevel)
}

func NewConsoleLoggerTo(w io.Writer, timezone string, minLevel out.LogLevel) (*ConsoleLogger, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	return &ConsoleLogger{
		defaultFields: make(out.LogFields),
		module:        "unknown",
		location:      loc,
		minLevel:      minLevel,
		w:             w,
		mu:            &sync.Mutex{},
	}, nil
}

func (l *ConsoleLogger) clone() *ConsoleLogger {
	c := *l
	c.defaultFields = make(out.LogFields, len(l.defaultFields))
	for k, v := range l.defaultFields {
		c.defaultFields[k] = v
	}
	return &c
}

func (l *ConsoleLogger) WithFields(fields out.LogFields) out.LoggerPort {
	newLogger := l.clone()
	for k, v := range fields {
		newLogger.defaultFields[k] = v
	}
	return newLogger
}

func (l *ConsoleLogger) WithModule(module string) out.LoggerPort {
	newLogger := l.clone()
	newLogger.module = module
	return newLogger
}

func (l *ConsoleLogger) Debug(event string, fields out.LogFields) {
	l.log(out.LogLevelDebug, event, fields)
}

func (l *ConsoleLogger) Info(event string, fields out.LogFields) {
	l.log(out.LogLevelInfo, event, fields)
}

func (l *ConsoleLogger) Warn(event string, fields out.LogFields) {
	l.log(out.LogLevelWarn, event, fields)
}

func (l *ConsoleLogger) Error(event string, fields out.LogFields) {
	l.log(out.LogLevelError, event, fields)
}

func (l *ConsoleLogger) log(level out.LogLevel, event string, fields out.LogFields) {
	if !level.Enabled(l.minLevel) {
		return
	}

	// Объединяем поля
	mergedFields := make(out.LogFields, len(l.defaultFields)+len(fields)+1)
	for k, v := range l.defaultFields {
		mergedFields[k] = v
	}
	for k, v := range fields {
		mergedFields[k] = v
	}
	mergedFields["event"] = event

	timestamp := time.Now().In(l.location).Format("2006-01-02 15:04:05.000")

	var levelColor string
	switch level {
	case out.LogLevelDebug:
		levelColor = colorGray
	case out.LogLevelInfo:
		levelColor = colorGreen
	case out.LogLevelWarn:
		levelColor = colorYellow
	case out.LogLevelError:
		levelColor = colorRed
	}

	fieldsBytes, err := json.MarshalIndent(mergedFields, "", "  ")
	if err != nil {
		fieldsBytes = []byte(fmt.Sprintf(`{"event": %q, "marshalError": %q}`, event, err.Error()))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s[%s]%s %s[%s]%s %s[%s]%s\n%s\n",
		colorGray, timestamp, colorReset,
		levelColor, level, colorReset,
		colorCyan, l.module, colorReset,
		string(fieldsBytes),
	)
}
