package log

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// applyFields attaches key/value pairs to a zerolog event. A leading error is
// recorded with Err and, when it was created by cockroachdb/errors, its stack
// trace is added under StacktraceKey.
func applyFields(e *zerolog.Event, fields []any) *zerolog.Event {
	if e == nil {
		return e
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Err(err)
			if st := extractStacktrace(err); st != "" {
				e = e.Str(StacktraceKey, st)
			}
			fields = fields[1:]
		}
	}
	if len(fields) == 0 {
		return e
	}
	return e.Fields(normalizeFields(fields))
}

// normalizeFields stringifies keys and drops a dangling key without value.
func normalizeFields(fields []any) []any {
	out := make([]any, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", fields[i])
		}
		out = append(out, key, fields[i+1])
	}
	return out
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
