package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// RequestLog captures one LLM API call for auditing and cost tracking.
type RequestLog struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	CostUSD      float64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// RequestLogRepo persists LLM request log entries.
type RequestLogRepo interface {
	AppendLLMRequest(ctx context.Context, entry RequestLog) error
}

// NopRequestLog discards all entries. Used when no store is open.
type NopRequestLog struct{}

func (NopRequestLog) AppendLLMRequest(context.Context, RequestLog) error { return nil }

// LoggingProvider is a decorator that records every LLM request in the
// request audit log, including estimated cost.
type LoggingProvider struct {
	inner Provider
	logs  RequestLogRepo
}

// WithLogging wraps a Provider with request logging.
func WithLogging(p Provider, logs RequestLogRepo) Provider {
	return &LoggingProvider{inner: p, logs: logs}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	resp, err := l.inner.Generate(ctx, req)

	latencyMs := time.Since(start).Milliseconds()

	entry := RequestLog{
		Provider:    l.inner.ModelID(),
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   latencyMs,
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}

	if resp != nil {
		entry.InputTokens = resp.Usage.InputTokens
		entry.OutputTokens = resp.Usage.OutputTokens
		entry.Model = resp.Model
		entry.ResponseBody = string(resp.Content)
		if cost := LookupCost(resp.Model); cost != nil {
			entry.CostUSD = cost.Cost(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}
	}

	if err != nil {
		entry.ErrorMessage = err.Error()
	}

	// Log the entry but don't fail the request if logging fails.
	if logErr := l.logs.AppendLLMRequest(ctx, entry); logErr != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to log LLM request: %v\n", logErr)
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		b.WriteString(fmt.Sprintf("[%s]\n", m.Role))
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.Schema != nil {
		schemaDef, err := json.Marshal(req.Schema.Definition)
		if err == nil {
			b.WriteString(fmt.Sprintf("[schema: %s]\n", req.Schema.Name))
			b.WriteString(string(schemaDef))
			b.WriteString("\n")
		}
	}

	return b.String()
}
