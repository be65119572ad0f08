package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/veil/internal/span"
)

// DefaultTimeout bounds a single call to the external analyzer.
const DefaultTimeout = 10 * time.Second

// PresidioClient calls a Presidio analyzer service over HTTP.
type PresidioClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	minScore   float64
}

// PresidioOption configures a PresidioClient.
type PresidioOption func(*PresidioClient)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) PresidioOption {
	return func(c *PresidioClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) PresidioOption {
	return func(c *PresidioClient) { c.httpClient = hc }
}

// WithScoreThreshold is forwarded to the analyzer as score_threshold.
func WithScoreThreshold(score float64) PresidioOption {
	return func(c *PresidioClient) { c.minScore = score }
}

// NewPresidioClient creates a client for the analyzer at baseURL
// (e.g. http://localhost:5002).
func NewPresidioClient(baseURL string, opts ...PresidioOption) *PresidioClient {
	c := &PresidioClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type analyzeRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	Entities       []string `json:"entities,omitempty"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
}

type analyzeResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Detect posts text to /analyze. Presidio reports offsets in code points;
// they are converted to byte offsets before returning.
func (c *PresidioClient) Detect(ctx context.Context, text string, entities []string, language string) ([]span.Entity, error) {
	ctx, sp := tracer.Start(ctx, "detector.presidio",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("pii.language", language)))
	defer sp.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(analyzeRequest{
		Text:           text,
		Language:       language,
		Entities:       entities,
		ScoreThreshold: c.minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling analyze request: %v", ErrDetector, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating analyze request: %v", ErrDetector, err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		sp.RecordError(err)
		return nil, fmt.Errorf("%w: presidio analyzer call: %v", ErrDetector, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: presidio analyzer returned %d: %s", ErrDetector, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []analyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: decoding analyze response: %v", ErrDetector, err)
	}

	offsets := runeToByteOffsets(text)
	out := make([]span.Entity, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End >= len(offsets) || r.Start >= r.End {
			return nil, fmt.Errorf("%w: analyzer span %s [%d,%d) outside text", ErrDetector, r.EntityType, r.Start, r.End)
		}
		out = append(out, span.Entity{
			EntityType: r.EntityType,
			Start:      offsets[r.Start],
			End:        offsets[r.End],
			Score:      r.Score,
		})
	}

	sp.SetAttributes(attribute.Int("pii.entity_count", len(out)))
	return out, nil
}

// runeToByteOffsets maps code-point index i to its byte offset; the final
// element is len(text) so end offsets resolve too.
func runeToByteOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
