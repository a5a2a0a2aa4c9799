package logging

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

type LogCode string

const (
	// SYSTEM EVENTS (SYSTEM*)
	SYSTEM LogCode = "SYSTEM"

	// AUTH OPERATIONS (AUTH*)
	AUTH_LOGIN  LogCode = "AUTH_LOGIN"
	AUTH_SIGNUP LogCode = "AUTH_SIGNUP"

	// RECORD OPERATIONS (RECORD*)
	RECORD_CREATE LogCode = "RECORD_CREATE"
	RECORD_UPDATE LogCode = "RECORD_UPDATE"
	RECORD_DELETE LogCode = "RECORD_DELETE"
	RECORD_ACCESS LogCode = "RECORD_ACCESS"
)

// VictoriaLogs has fixed field name for time (_time) and message(_msg). This function maps fields msg -> _msg and time -> _time.
func convertKeysToVictoriaLogs(keys []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}

// InitLogging fans log records out to a JSON file handler (for log
// collection) and a human readable text handler on stderr.
func InitLogging(logFile *os.File, serviceType string) {
	var jsonHandler slog.Handler = slog.NewJSONHandler(logFile, GetVictoriaLogsOptions(true))

	// these fields will be used for filtering logs
	jsonHandler = jsonHandler.WithAttrs([]slog.Attr{
		slog.String("service_type", serviceType),
	})
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	logger := slog.New(slogmulti.Fanout(jsonHandler, textHandler))
	slog.SetDefault(logger)
}
