package container

import (
	"go.uber.org/zap"

	"github.com/garyjia/deed-approval/internal/application/service"
)

// kvLogger turns the key-value logging used by services, the dispatcher and
// the HTTP layer into typed zap fields
type kvLogger struct {
	z *zap.Logger
}

// NewServiceLogger adapts a zap logger to the key-value Logger used by services and the HTTP server
func NewServiceLogger(logger *zap.Logger) service.Logger {
	return kvLogger{z: logger}
}

func (l kvLogger) Info(msg string, kv ...any)  { l.z.Info(msg, fields(kv)...) }
func (l kvLogger) Warn(msg string, kv ...any)  { l.z.Warn(msg, fields(kv)...) }
func (l kvLogger) Error(msg string, kv ...any) { l.z.Error(msg, fields(kv)...) }

func fields(kv []any) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			out = append(out, zap.NamedError(key, v))
		case string:
			out = append(out, zap.String(key, v))
		default:
			out = append(out, zap.Any(key, v))
		}
	}
	return out
}
