package obs

import (
	"encoding/json"
	"hash/fnv"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
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

// Event emits one structured JSON log line. User-identifying values must be
// passed through MaskID before they reach fields.
func Event(level, component, event string, fields map[string]any) {
	entry := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"component": component,
		"event":     event,
	}
	for k, v := range fields {
		if v == nil {
			continue
		}
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","event":"log_marshal_failed"}`)
		return
	}
	Logger().Println(string(data))
}

// MaskID hashes an identifier for log output. The result is stable enough for
// correlation across lines but cannot be reversed to the original UUID.
func MaskID(id string) string {
	if id == "" {
		return "unknown"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return "u_" + strconv.FormatUint(uint64(h.Sum32()), 36)
}

// MaskValue masks v only when it looks like a user identifier; other values
// pass through so log lines stay greppable.
func MaskValue(v string) string {
	if _, err := uuid.Parse(v); err == nil {
		return MaskID(v)
	}
	return v
}
