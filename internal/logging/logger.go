package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
)

// Logger is the leveled logger used across the application.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})
}

// StdLogger writes "[LEVEL] msg {json fields}" lines through a *log.Logger.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// New returns a StdLogger writing to w. Debug lines are dropped unless debug is set.
func New(w io.Writer, debug bool) *StdLogger {
	return &StdLogger{
		logger: log.New(w, "[TIMELINE] ", log.LstdFlags),
		debug:  debug,
	}
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *StdLogger) log(level, msg string, fields map[string]interface{}) {
	logMsg := fmt.Sprintf("[%s] %s", level, msg)
	if len(fields) > 0 {
		jsonFields, _ := json.Marshal(fields)
		logMsg += " " + string(jsonFields)
	}
	l.logger.Output(3, logMsg)
}

// Discard drops everything. Handy in tests.
type Discard struct{}

func (Discard) Debug(context.Context, string, map[string]interface{}) {}
func (Discard) Info(context.Context, string, map[string]interface{})  {}
func (Discard) Warn(context.Context, string, map[string]interface{})  {}
func (Discard) Error(context.Context, string, map[string]interface{}) {}
