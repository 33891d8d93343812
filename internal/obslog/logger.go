// Package obslog provides structured JSON logging shared by every permgate
// component: the cascade engine, the supervisor daemon, and the CLI.
package obslog

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// Logger emits structured JSON log entries for one named component.
type Logger struct {
	Component  string
	InstanceID string
	Host       string
}

// Entry is one structured log line.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Instance  string                 `json:"instance_id"`
	Host      string                 `json:"host"`
	SessionID string                 `json:"session_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the named component. Instance id comes from
// PERMGATE_INSTANCE_ID, falling back to "unknown"; host from os.Hostname.
func New(component string) *Logger {
	instance := os.Getenv("PERMGATE_INSTANCE_ID")
	if instance == "" {
		instance = "unknown"
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Logger{Component: component, InstanceID: instance, Host: host}
}

// Log writes one structured entry to stdout.
func (l *Logger) Log(level Level, sessionID, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Instance:  l.InstanceID,
		Host:      l.Host,
		SessionID: sessionID,
		Message:   message,
		Fields:    fields,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: obslog: failed to marshal entry: %v", err)
		return
	}
	log.Println(string(b))
}

func (l *Logger) Info(sessionID, message string, fields map[string]interface{}) {
	l.Log(Info, sessionID, message, fields)
}

func (l *Logger) Warn(sessionID, message string, fields map[string]interface{}) {
	l.Log(Warn, sessionID, message, fields)
}

func (l *Logger) Debug(sessionID, message string, fields map[string]interface{}) {
	l.Log(Debug, sessionID, message, fields)
}

// ErrorWithErr logs an error message, attaching err.Error() as a field.
func (l *Logger) ErrorWithErr(sessionID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Log(Error, sessionID, message, fields)
}

// InfoWithDuration logs an info message tagged with a duration in milliseconds.
func (l *Logger) InfoWithDuration(sessionID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(sessionID, message, fields)
}
