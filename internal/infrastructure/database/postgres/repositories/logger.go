package repositories

// Logger is the minimal logging contract required by repository
// implementations.  It is satisfied by the extraction layer's key-value
// logger and by most sugared structured-logging libraries.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
