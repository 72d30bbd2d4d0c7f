package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// Service identifies this process in every structured log line.
const Service = "hrvault-api"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line-oriented logger. All structured output
// goes through it so tests can capture the stream with SetOutput.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one structured JSON line. The service name is always
// stamped; ts and level default to now/info when the caller omits them.
func LogRequest(entry map[string]any) {
	if entry == nil {
		entry = map[string]any{}
	}
	entry["service"] = Service
	if _, ok := entry["ts"]; !ok {
		entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if _, ok := entry["level"]; !ok {
		entry["level"] = "info"
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"service":"` + Service + `","level":"error","msg":"log_marshal_failed"}`)
		return
	}
	Logger().Println(string(data))
}
