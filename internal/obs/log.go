package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogJSON emits a structured JSON log line.
func LogJSON(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		// The entry carried an unmarshalable value; emit a fixed line rather
		// than drop the signal entirely.
		Logger().Println(`{"level":"error","msg":"log entry marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// LogError emits an error-level line with the standard envelope (ts, level,
// msg, error) plus any extra fields. Reserved keys in fields are overwritten
// by the envelope.
func LogError(msg string, err error, fields map[string]any) {
	entry := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = "error"
	entry["msg"] = msg
	if err != nil {
		entry["error"] = err.Error()
	}
	LogJSON(entry)
}
