package logging

import "github.com/sirupsen/logrus"

// Logrus adapts a *logrus.Logger (or the package-level logrus.StandardLogger)
// to the Logger interface, so the module ships a real structured-logging
// default instead of forcing every caller to write their own adapter.
type Logrus struct {
	Entry *logrus.Logger
}

// NewLogrus returns a Logrus-backed Logger. A nil entry uses logrus's
// standard logger.
func NewLogrus(entry *logrus.Logger) Logrus {
	if entry == nil {
		entry = logrus.StandardLogger()
	}
	return Logrus{Entry: entry}
}

func (l Logrus) Log(level Level, msg string, keyvals ...interface{}) {
	fields := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyvals[i+1]
	}
	entry := l.Entry.WithFields(fields)
	switch level {
	case LevelDebug:
		entry.Debug(msg)
	case LevelInfo:
		entry.Info(msg)
	case LevelWarn:
		entry.Warn(msg)
	case LevelError:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
}
