package testhelper

import (
	"fmt"
	"sync"

	"github.com/arcfield/plugindb/internal/logger"
)

// logRecorder collects entries across a TestLogger and all its scoped
// children, so assertions see everything regardless of scoping.
type logRecorder struct {
	mu            sync.RWMutex
	infoMessages  []LogEntry
	errorMessages []LogEntry
	warnMessages  []LogEntry
	debugMessages []LogEntry
}

// TestLogger records log calls for assertions instead of writing output
type TestLogger struct {
	rec          *logRecorder
	fields       map[string]interface{}
	debugEnabled bool
}

// LogEntry represents a log entry with its message and fields
type LogEntry struct {
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a new test logger instance
func NewTestLogger(debugEnabled bool) *TestLogger {
	return &TestLogger{rec: &logRecorder{}, debugEnabled: debugEnabled}
}

// LogInfo implements logger.Logger
func (t *TestLogger) LogInfo(msg string, fields map[string]interface{}) {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.rec.infoMessages = append(t.rec.infoMessages, LogEntry{Message: msg, Fields: t.mergeFields(fields)})
}

// LogError implements logger.Logger
func (t *TestLogger) LogError(err error, msg string) error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()

	fields := map[string]interface{}{}
	if err != nil {
		fields["error"] = err.Error()
	}
	t.rec.errorMessages = append(t.rec.errorMessages, LogEntry{Message: msg, Fields: t.mergeFields(fields)})
	return err
}

// LogErrorf implements logger.Logger
func (t *TestLogger) LogErrorf(err error, format string, args ...interface{}) error {
	return t.LogError(err, fmt.Sprintf(format, args...))
}

// LogFatal implements logger.Logger; tests must never exit
func (t *TestLogger) LogFatal(err error, context string) {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()

	fields := map[string]interface{}{"context": context}
	if err != nil {
		fields["error"] = err.Error()
	}
	t.rec.errorMessages = append(t.rec.errorMessages, LogEntry{Message: "FATAL: " + context, Fields: t.mergeFields(fields)})
}

// LogDebug implements logger.Logger
func (t *TestLogger) LogDebug(message string, fields map[string]interface{}) {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()

	if !t.debugEnabled {
		return
	}
	t.rec.debugMessages = append(t.rec.debugMessages, LogEntry{Message: message, Fields: t.mergeFields(fields)})
}

// LogWarn implements logger.Logger
func (t *TestLogger) LogWarn(message string, fields map[string]interface{}) {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.rec.warnMessages = append(t.rec.warnMessages, LogEntry{Message: message, Fields: t.mergeFields(fields)})
}

// WithFields implements logger.Logger; the child shares the recorder
func (t *TestLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return &TestLogger{
		rec:          t.rec,
		fields:       t.mergeFields(fields),
		debugEnabled: t.debugEnabled,
	}
}

// WithPlugin implements logger.Logger
func (t *TestLogger) WithPlugin(pluginName string) logger.Logger {
	return t.WithFields(map[string]interface{}{"plugin": pluginName})
}

// WithServer implements logger.Logger
func (t *TestLogger) WithServer(serverID string) logger.Logger {
	return t.WithFields(map[string]interface{}{"serverID": serverID})
}

// GetInfoMessages returns all info level messages
func (t *TestLogger) GetInfoMessages() []LogEntry {
	t.rec.mu.RLock()
	defer t.rec.mu.RUnlock()
	return t.rec.infoMessages
}

// GetErrorMessages returns all error level messages
func (t *TestLogger) GetErrorMessages() []LogEntry {
	t.rec.mu.RLock()
	defer t.rec.mu.RUnlock()
	return t.rec.errorMessages
}

// GetWarnMessages returns all warning level messages
func (t *TestLogger) GetWarnMessages() []LogEntry {
	t.rec.mu.RLock()
	defer t.rec.mu.RUnlock()
	return t.rec.warnMessages
}

// GetDebugMessages returns all debug level messages
func (t *TestLogger) GetDebugMessages() []LogEntry {
	t.rec.mu.RLock()
	defer t.rec.mu.RUnlock()
	return t.rec.debugMessages
}

// mergeFields merges the logger's base fields with the provided fields
func (t *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(t.fields)+len(fields))
	for k, v := range t.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}
