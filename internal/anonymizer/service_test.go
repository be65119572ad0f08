package anonymizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/audit"
	"github.com/dativo-io/veil/internal/detector"
	"github.com/dativo-io/veil/internal/requestctx"
	"github.com/dativo-io/veil/internal/session"
	"github.com/dativo-io/veil/internal/span"
	"github.com/dativo-io/veil/internal/testutil"
)

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (c *captureSink) Record(_ context.Context, ev *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *ev)
	return c.err
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Detector == nil {
		cfg.Detector = testutil.NewScanner(t)
	}
	if cfg.Operator == nil {
		cfg.Operator = newAESOp(t, testutil.TestCipherKey)
	}
	if cfg.Cache == nil {
		cfg.Cache = session.NewCache()
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func TestServiceEndToEnd(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	text := "Call John at 555-123-4567"

	res, err := svc.Anonymize(ctx, text)
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.NotContains(t, res.Text, "John")
	assert.NotContains(t, res.Text, "555-123-4567")
	assert.True(t, strings.HasPrefix(res.Text, "Call "))

	require.Len(t, res.Records, 2)
	assert.Equal(t, "PERSON", res.Records[0].EntityType)
	assert.Equal(t, 5, res.Records[0].Start)
	assert.Equal(t, "PHONE_NUMBER", res.Records[1].EntityType)
	assert.Equal(t, len(res.Text), res.Records[1].End)

	stored, err := svc.Cache().Get(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.Text, stored.Text)
	assert.Equal(t, res.Records, stored.Records)

	back, err := svc.Deanonymize(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, text, back)
}

func TestServiceNoPII(t *testing.T) {
	svc := newTestService(t, Config{})
	res, err := svc.Anonymize(context.Background(), "Hello world, this is a test")
	require.NoError(t, err)
	assert.Equal(t, "Hello world, this is a test", res.Text)
	assert.Empty(t, res.Records)

	back, err := svc.Deanonymize(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Hello world, this is a test", back)
}

func TestServiceFreshSessionIDs(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	a, err := svc.Anonymize(ctx, "Call John")
	require.NoError(t, err)
	b, err := svc.Anonymize(ctx, "Call John")
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID, b.SessionID)

	// Both sessions stay reversible.
	for _, id := range []string{a.SessionID, b.SessionID} {
		back, err := svc.Deanonymize(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Call John", back)
	}
}

func TestServiceValidation(t *testing.T) {
	det := &testutil.StaticDetector{}
	svc := newTestService(t, Config{Detector: det})

	_, err := svc.Anonymize(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, det.Calls, "detector must not run for empty input")
}

func TestServiceDetectorDefaults(t *testing.T) {
	det := &testutil.StaticDetector{}
	svc := newTestService(t, Config{Detector: det})

	_, err := svc.Anonymize(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, detector.DefaultEntities, det.LastEntities)
	assert.Equal(t, detector.DefaultLanguage, det.LastLanguage)

	custom := &testutil.StaticDetector{}
	svc = newTestService(t, Config{Detector: custom, Entities: []string{"EMAIL_ADDRESS"}, Language: "fr"})
	_, err = svc.Anonymize(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL_ADDRESS"}, custom.LastEntities)
	assert.Equal(t, "fr", custom.LastLanguage)
}

func TestServiceDetectorFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"plain error", errors.New("model unavailable")},
		{"already wrapped", fmt.Errorf("%w: model unavailable", detector.ErrDetector)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := session.NewCache()
			svc := newTestService(t, Config{Detector: &testutil.StaticDetector{Err: tt.err}, Cache: cache})

			_, err := svc.Anonymize(context.Background(), "Call John")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDetector)
			assert.Contains(t, err.Error(), "model unavailable")
			assert.Equal(t, 0, cache.Len(), "no session stored on failure")
		})
	}
}

func TestServiceInvalidDetectorSpan(t *testing.T) {
	det := &testutil.StaticDetector{Spans: []span.Entity{{EntityType: "PERSON", Start: 2, End: 50}}}
	svc := newTestService(t, Config{Detector: det})

	_, err := svc.Anonymize(context.Background(), "Call John")
	assert.ErrorIs(t, err, ErrInvalidSpan)
}

func TestServiceReportsSkippedSpans(t *testing.T) {
	det := &testutil.StaticDetector{Spans: []span.Entity{
		{EntityType: "A", Start: 0, End: 10, Score: 1},
		{EntityType: "B", Start: 5, End: 15, Score: 1},
	}}
	svc := newTestService(t, Config{Detector: det})

	res, err := svc.Anonymize(context.Background(), "abcdefghijklmno")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "A", res.Records[0].EntityType)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "B", res.Skipped[0].EntityType)

	back, err := svc.Deanonymize(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmno", back)
}

func TestServiceDeanonymizeUnknownSession(t *testing.T) {
	svc := newTestService(t, Config{})
	for _, id := range []string{"", "does-not-exist"} {
		_, err := svc.Deanonymize(context.Background(), id)
		assert.ErrorIs(t, err, ErrSessionNotFound, "id %q", id)
	}
}

func TestServiceKeyRotation(t *testing.T) {
	cache := session.NewCache()
	before := newTestService(t, Config{Cache: cache})
	res, err := before.Anonymize(context.Background(), "Call John")
	require.NoError(t, err)

	after := newTestService(t, Config{Cache: cache, Operator: newAESOp(t, "abcdefghijklmnopqrstuvwxyz012345")})
	_, err = after.Deanonymize(context.Background(), res.SessionID)
	assert.ErrorIs(t, err, ErrCipher)
}

func TestServiceAuditSink(t *testing.T) {
	sink := &captureSink{}
	ids := []string{"sess-a"}
	svc := newTestService(t, Config{Sink: sink, NewID: func() string { return ids[0] }})

	ctx := requestctx.SetCaller(context.Background(), "billing-bot")
	ctx = requestctx.SetCorrelationID(ctx, "req-42")

	_, err := svc.Anonymize(ctx, "Call John at 555-123-4567")
	require.NoError(t, err)
	_, err = svc.Deanonymize(ctx, "sess-a")
	require.NoError(t, err)
	_, err = svc.Deanonymize(ctx, "missing")
	require.Error(t, err)

	require.Len(t, sink.events, 3)

	anon := sink.events[0]
	assert.Equal(t, audit.OperationAnonymize, anon.Operation)
	assert.Equal(t, "sess-a", anon.SessionID)
	assert.Equal(t, "billing-bot", anon.Caller)
	assert.Equal(t, "req-42", anon.CorrelationID)
	assert.Equal(t, 25, anon.InputLength)
	assert.Equal(t, 2, anon.EntitiesFound)
	assert.ElementsMatch(t, []string{"PERSON", "PHONE_NUMBER"}, anon.EntityTypes)
	assert.True(t, anon.Success)

	assert.Equal(t, audit.OperationDeanonymize, sink.events[1].Operation)
	assert.True(t, sink.events[1].Success)

	failed := sink.events[2]
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "session not found")
}

func TestServiceSinkFailureDoesNotFailRequest(t *testing.T) {
	svc := newTestService(t, Config{Sink: &captureSink{err: errors.New("disk full")}})
	_, err := svc.Anonymize(context.Background(), "Call John")
	assert.NoError(t, err)
}

func TestServiceAuditStore(t *testing.T) {
	store := testutil.NewTestAuditStore(t)
	svc := newTestService(t, Config{Sink: store})
	ctx := context.Background()

	res, err := svc.Anonymize(ctx, "Call John")
	require.NoError(t, err)

	events, err := store.List(ctx, audit.ListFilter{SessionID: res.SessionID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.OperationAnonymize, events[0].Operation)

	ok, err := store.Verify(ctx, events[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServiceConcurrentCalls(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Anonymize(ctx, fmt.Sprintf("Call John at 555-123-%04d", i))
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = res.SessionID
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "duplicate session id")
		seen[ids[i]] = true

		back, err := svc.Deanonymize(ctx, ids[i])
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("Call John at 555-123-%04d", i), back)
	}
	assert.Equal(t, n, svc.Cache().Len())
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	op := newAESOp(t, testutil.TestCipherKey)
	det := &testutil.StaticDetector{}
	cache := session.NewCache()

	_, err := NewService(Config{Operator: op, Cache: cache})
	assert.Error(t, err)
	_, err = NewService(Config{Detector: det, Cache: cache})
	assert.Error(t, err)
	_, err = NewService(Config{Detector: det, Operator: op})
	assert.Error(t, err)
}

func TestServiceRepeatedValues(t *testing.T) {
	det := testutil.WordDetector{Words: map[string]string{"Ann": "PERSON", "ACME-7": "ACCOUNT_ID"}}
	svc := newTestService(t, Config{Detector: det})
	text := "Ann paid ACME-7, then Ann paid ACME-7 again"

	res, err := svc.Anonymize(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, res.Records, 4)
	assert.NotContains(t, res.Text, "Ann")
	assert.NotContains(t, res.Text, "ACME-7")

	// Fresh nonces give distinct tokens for equal plaintext.
	first := res.Text[res.Records[0].Start:res.Records[0].End]
	third := res.Text[res.Records[2].Start:res.Records[2].End]
	assert.NotEqual(t, first, third)

	back, err := svc.Deanonymize(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, text, back)
}
