package main

import (
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
)

// kvLog adapts the platform's field-based logger to the key-value logging
// contract shared by the repository and pipeline packages.
type kvLog struct {
	base logging.Logger
}

func (l kvLog) Debug(msg string, keysAndValues ...interface{}) {
	l.base.Debug(msg, kvFields(keysAndValues)...)
}

func (l kvLog) Info(msg string, keysAndValues ...interface{}) {
	l.base.Info(msg, kvFields(keysAndValues)...)
}

func (l kvLog) Warn(msg string, keysAndValues ...interface{}) {
	l.base.Warn(msg, kvFields(keysAndValues)...)
}

func (l kvLog) Error(msg string, keysAndValues ...interface{}) {
	l.base.Error(msg, kvFields(keysAndValues)...)
}

func kvFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logging.Any(key, keysAndValues[i+1]))
	}
	return fields
}
