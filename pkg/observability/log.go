// Package observability provides the structured JSON event logger used
// across the repository, in the same plain log.New + marshaled-payload
// style as the teacher's libs/observability/log.go (no external logging
// library is pulled in for this, which is deliberate — see DESIGN.md).
package observability

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

type runInfoKey struct{}

// RunInfo is the minimal context carrier attached to every log line:
// which replay/flow this event belongs to and, when relevant, the symbol.
type RunInfo struct {
	FlowID string
	RunID  string
	Symbol string
}

func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

func runInfoFromContext(ctx context.Context) RunInfo {
	if v, ok := ctx.Value(runInfoKey{}).(RunInfo); ok {
		return v
	}
	return RunInfo{}
}

// LogEvent prints a single JSON line: timestamp, level, event name, the
// ambient RunInfo fields, and any extra fields supplied by the caller.
func LogEvent(ctx context.Context, level, event string, fields map[string]any) {
	info := runInfoFromContext(ctx)
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"event": event,
	}
	if info.FlowID != "" {
		payload["flow_id"] = info.FlowID
	}
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			payload[k] = err.Error()
		} else {
			payload[k] = v
		}
	}
	out, err := json.Marshal(payload)
	if err != nil {
		logger.Printf(`{"level":"error","event":"log_marshal_failed","cause":%q}`, err.Error())
		return
	}
	logger.Println(string(out))
}

func LogWarmUpComplete(ctx context.Context, t time.Time) {
	LogEvent(ctx, "info", "warmup_complete", map[string]any{"time": t.UTC().Format(time.RFC3339)})
}

func LogShutdown(ctx context.Context, reason string) {
	LogEvent(ctx, "info", "shutdown", map[string]any{"reason": reason})
}

func LogOrderRejected(ctx context.Context, orderID, reason string) {
	LogEvent(ctx, "warn", "order_rejected", map[string]any{"order_id": orderID, "reason": reason})
}
