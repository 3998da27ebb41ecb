// Package logging provides structured JSON logging for taskpilot components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event represents a structured log event
type Event struct {
	Timestamp string                 `json:"ts"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Event     string                 `json:"event"`
	Plan      string                 `json:"plan,omitempty"`
	Task      string                 `json:"task,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Logger provides structured logging
type Logger struct {
	component string
	plan      string
	task      string
	out       io.Writer
}

var (
	outMu      sync.Mutex
	defaultOut io.Writer = os.Stderr
)

// SetOutput redirects all loggers (for testing).
func SetOutput(w io.Writer) {
	outMu.Lock()
	defaultOut = w
	outMu.Unlock()
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{component: component}
}

// WithPlan sets the plan context
func (l *Logger) WithPlan(planID string) *Logger {
	return &Logger{component: l.component, plan: planID, task: l.task, out: l.out}
}

// WithTask sets the task context
func (l *Logger) WithTask(taskID string) *Logger {
	return &Logger{component: l.component, plan: l.plan, task: taskID, out: l.out}
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]interface{}, err error, dur time.Duration) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Plan:      l.plan,
		Task:      l.task,
		Duration:  dur.Milliseconds(),
		Extra:     extra,
	}
	if err != nil {
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)
	outMu.Lock()
	w := l.out
	if w == nil {
		w = defaultOut
	}
	fmt.Fprintln(w, string(data))
	outMu.Unlock()
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]interface{}) {
	l.log(LevelDebug, event, extra, nil, 0)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]interface{}) {
	l.log(LevelInfo, event, extra, nil, 0)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]interface{}, err error) {
	l.log(LevelWarn, event, extra, err, 0)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]interface{}, err error) {
	l.log(LevelError, event, extra, err, 0)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]interface{}) {
	l.log(LevelInfo, event, extra, nil, time.Since(start))
}
