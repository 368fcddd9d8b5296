package gwaycmd

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DeRuina/timberjack"
)

// newLogger builds the process-wide zap.Logger. With no file configured it
// logs JSON at info level to stderr (zap.NewProductionEncoderConfig +
// zapcore.NewJSONEncoder + InfoLevel). When logFile is non-empty, output is
// instead split across a rotating file via timberjack, the
// actively-maintained lumberjack fork.
func newLogger(logFile string) (*zap.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	var sink zapcore.WriteSyncer
	if logFile == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		sink = zapcore.AddSync(&timberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	core := zapcore.NewCore(encoder, sink, zapcore.InfoLevel)
	return zap.New(core), nil
}
