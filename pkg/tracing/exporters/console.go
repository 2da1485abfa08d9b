package exporters

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter keeps finished spans in memory. It backs local runs and
// tests that want to inspect span names without a collector.
type ConsoleExporter struct {
	mu    sync.Mutex
	names []string
}

func (c *ConsoleExporter) ExportSpans(_ context.Context, spans []trace.ReadOnlySpan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range spans {
		c.names = append(c.names, s.Name())
	}
	return nil
}

func (c *ConsoleExporter) Shutdown(context.Context) error {
	return nil
}

// SpanNames returns the names of the spans exported so far.
func (c *ConsoleExporter) SpanNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}
