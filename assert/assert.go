package assert

import (
	"os"

	"go.uber.org/zap"
)

// Fatal invariants for process startup. They log through the given logger and
// exit, so they never return on failure.

var exit = os.Exit

func runAssert(log *zap.Logger, message string, fields []zap.Field) {
	log.Error(message, fields...)
	log.Sync()
	exit(1)
}

func NotNil(log *zap.Logger, object any, message string, fields ...zap.Field) {
	if object == nil {
		runAssert(log, message, append(fields, zap.String("expected", "not nil")))
	}
}

func Assert(log *zap.Logger, truthy bool, got any, expected any, message string, fields ...zap.Field) {
	if !truthy {
		runAssert(log, message, append(fields, zap.Any("got", got), zap.Any("expected", expected)))
	}
}

func NoError(log *zap.Logger, err error, message string, fields ...zap.Field) {
	if err != nil {
		runAssert(log, message, append(fields, zap.Error(err)))
	}
}
