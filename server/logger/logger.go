// Package logger provides the structured JSON file logger shared by the
// SMTP and HTTP frontends.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// Init initializes the structured logger with file output.
func Init(logFilePath string) error {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	ws := zapcore.AddSync(f)
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zap.InfoLevel)
	log = zap.New(core)
	return nil
}

// L returns the shared logger. Before Init it returns a no-op logger so
// library code can log unconditionally.
func L() *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

func Sync() {
	if log != nil {
		log.Sync()
	}
}

// LogVerification logs the verdict reached for one message.
func LogVerification(mailID, code, signer, message string) {
	L().Info("verification completed",
		zap.String("event", "verification"),
		zap.String("mail_id", mailID),
		zap.String("code", code),
		zap.String("signer", signer),
		zap.String("message", message),
	)
}

// LogMessageReceived logs a new incoming message before verification.
func LogMessageReceived(from string, to []string, mailID string) {
	L().Info("message received",
		zap.String("event", "message_received"),
		zap.String("from", from),
		zap.Strings("to", to),
		zap.String("mail_id", mailID),
	)
}

// LogError logs an operational error.
func LogError(message string, err error, context map[string]string) {
	fields := []zap.Field{
		zap.String("event", "error"),
		zap.String("error", err.Error()),
	}

	for k, v := range context {
		fields = append(fields, zap.String(k, v))
	}

	L().Error(message, fields...)
}
