package obs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type logFieldsKey struct{}

// logFields collects request-scoped attributes that handlers learn while
// serving (quote id, error code) so the access log line can carry them.
type logFields struct {
	mu     sync.Mutex
	keys   []string
	values map[string]string
}

func withLogFields(ctx context.Context) (context.Context, *logFields) {
	f := &logFields{values: make(map[string]string)}
	return context.WithValue(ctx, logFieldsKey{}, f), f
}

// AddLogField attaches key=value to the request's access log entry. It is a
// no-op outside a RequestLogger or for empty values. Later writes win.
func AddLogField(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	f, ok := ctx.Value(logFieldsKey{}).(*logFields)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.values[key]; !seen {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

func (f *logFields) apply(evt *zerolog.Event) *zerolog.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		evt = evt.Str(k, f.values[k])
	}
	return evt
}
