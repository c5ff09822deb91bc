package scheduler

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/iyou00/chatui/internal/logging"
)

// cronParser accepts standard 5-field expressions, an optional leading
// seconds field, and descriptors such as @daily or @every 1h.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCron reports whether expr is a schedule the Scheduler accepts.
func ValidateCron(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("scheduler: cron expression is required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("scheduler: invalid cron %q: %w", expr, err)
	}
	return nil
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logging.Err(err))...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logging.F(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
