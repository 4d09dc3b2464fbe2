package resource

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the resource package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the resource package's logger.
// This must be called before any registry operations.
func SetLogger(l *zap.Logger) {
	logger = l
}

// LogObserver logs every lifecycle event at debug level.
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver returns an observer writing to l, or to Logger() if l is nil.
func NewLogObserver(l *zap.Logger) *LogObserver {
	if l == nil {
		l = Logger()
	}
	return &LogObserver{log: l}
}

func (o *LogObserver) OnResourceEvent(e Event) {
	fields := []zap.Field{
		zap.String("type", e.TypeID.String()),
		zap.Uint64("identity", uint64(e.Handle)),
	}
	if e.Parent != 0 {
		fields = append(fields, zap.Uint64("parent", uint64(e.Parent)))
	}
	if e.Generation != 0 {
		fields = append(fields, zap.Uint64("generation", e.Generation))
	}
	o.log.Debug("resource "+e.Type.String(), fields...)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
