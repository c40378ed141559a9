package logger

// Logger is the logging surface the migrator and isolation installers
// write through. Fields are structured key/value pairs; LogError and
// LogErrorf return the error so call sites can log and propagate in one
// expression.
type Logger interface {
	LogInfo(msg string, fields map[string]interface{})
	LogError(err error, msg string) error
	LogErrorf(err error, format string, args ...interface{}) error
	LogFatal(err error, context string)
	LogDebug(message string, fields map[string]interface{})
	LogWarn(message string, fields map[string]interface{})

	// WithFields returns a logger that attaches the given fields to every
	// entry. WithPlugin and WithServer are the two scopes this subsystem
	// uses: one migration run, one deployment.
	WithFields(fields map[string]interface{}) Logger
	WithPlugin(pluginName string) Logger
	WithServer(serverID string) Logger
}
