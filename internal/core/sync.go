package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"campreg/internal/blob"
	"campreg/pkg/domain"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SyncState is the lifecycle of the most recent push.
type SyncState string

const (
	SyncIdle       SyncState = "idle"
	SyncInProgress SyncState = "in_progress"
	SyncSucceeded  SyncState = "succeeded"
	SyncFailed     SyncState = "failed"
)

const (
	// DefaultSyncTimeout bounds a single push attempt.
	DefaultSyncTimeout = 15 * time.Second
	// DefaultKeyPrefix is prepended to every remote key.
	DefaultKeyPrefix = "registrations/"
	// pendingKeyName is used for records that have no ID yet.
	pendingKeyName = "pending"
)

// SyncStatus is a point-in-time snapshot of the engine for UI binding.
type SyncStatus struct {
	State         SyncState        `json:"state"`
	Attempts      int              `json:"attempts"`
	LastFailure   domain.ErrorKind `json:"lastFailure,omitempty"`
	LastError     string           `json:"lastError,omitempty"`
	LastKey       string           `json:"lastKey,omitempty"`
	LastSuccessAt time.Time        `json:"lastSuccessAt,omitzero"`
}

// SyncOutcome reports the result of one push.
type SyncOutcome struct {
	Status   SyncState        `json:"status"`
	Failure  domain.ErrorKind `json:"failure,omitempty"`
	Err      error            `json:"-"`
	Key      string           `json:"key"`
	ETag     string           `json:"etag,omitempty"`
	SyncedAt time.Time        `json:"syncedAt,omitzero"`
}

// Succeeded reports whether the push was accepted by the remote store.
func (o SyncOutcome) Succeeded() bool { return o.Status == SyncSucceeded }

// RemoteStore is the slice of blob.Store the engine writes through.
type RemoteStore interface {
	Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error)
}

// SyncEngine uploads the staged record to a remote object store under a
// deterministic key. It never retries on its own.
type SyncEngine struct {
	remote  RemoteStore
	prefix  string
	timeout time.Duration

	mu        sync.Mutex
	status    SyncStatus
	observers []func(SyncStatus)

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// SyncOption configures a SyncEngine.
type SyncOption func(*SyncEngine)

// WithSyncTimeout bounds each push attempt. Zero or negative disables the bound.
func WithSyncTimeout(d time.Duration) SyncOption {
	return func(e *SyncEngine) { e.timeout = d }
}

// WithKeyPrefix sets the remote key prefix.
func WithKeyPrefix(prefix string) SyncOption {
	return func(e *SyncEngine) { e.prefix = prefix }
}

// WithObserver registers fn to receive every status transition.
func WithObserver(fn func(SyncStatus)) SyncOption {
	return func(e *SyncEngine) {
		if fn != nil {
			e.observers = append(e.observers, fn)
		}
	}
}

// WithSyncLogger sets the engine logger.
func WithSyncLogger(logger *slog.Logger) SyncOption {
	return func(e *SyncEngine) { e.logger = logger }
}

// WithSyncMetrics sets the metrics sink.
func WithSyncMetrics(m *Metrics) SyncOption {
	return func(e *SyncEngine) { e.metrics = m }
}

// WithSyncTracer overrides the tracer.
func WithSyncTracer(t trace.Tracer) SyncOption {
	return func(e *SyncEngine) { e.tracer = t }
}

// WithSyncClock overrides the time source.
func WithSyncClock(now func() time.Time) SyncOption {
	return func(e *SyncEngine) { e.now = now }
}

// NewSyncEngine constructs an engine writing to remote.
func NewSyncEngine(remote RemoteStore, opts ...SyncOption) (*SyncEngine, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	e := &SyncEngine{
		remote:  remote,
		prefix:  DefaultKeyPrefix,
		timeout: DefaultSyncTimeout,
		status:  SyncStatus{State: SyncIdle},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.tracer == nil {
		e.tracer = defaultTracer()
	}
	return e, nil
}

// Key returns the remote key for record.
func (e *SyncEngine) Key(record domain.StoredRecord) string {
	id := record.ID
	if id == "" {
		id = pendingKeyName
	}
	return e.prefix + id + ".json"
}

// Status returns the current snapshot.
func (e *SyncEngine) Status() SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Push serializes record and writes it to its key, replacing any previous
// object. Failures come back classified in the outcome.
func (e *SyncEngine) Push(ctx context.Context, record domain.StoredRecord) SyncOutcome {
	key := e.Key(record)
	ctx, span := e.tracer.Start(ctx, "sync.push", trace.WithAttributes(
		attribute.String("campreg.record_id", record.ID),
		attribute.String("campreg.key", key),
	))
	defer span.End()

	e.transition(func(s *SyncStatus) {
		s.State = SyncInProgress
		s.Attempts++
		s.LastKey = key
		s.LastError = ""
		s.LastFailure = ""
	})
	start := e.now()

	info, err := e.put(ctx, key, record)
	e.metrics.ObserveSyncLatency(e.now().Sub(start))

	if err != nil {
		kind := ClassifyFailure(err)
		typed := domain.Wrap(kind, "sync push", err)
		e.transition(func(s *SyncStatus) {
			s.State = SyncFailed
			s.LastFailure = kind
			s.LastError = typed.Error()
		})
		e.metrics.IncrementSyncAttempt(string(kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		e.logger.WarnContext(ctx, "sync push failed", "key", key, "failure", kind, "error", err)
		return SyncOutcome{Status: SyncFailed, Failure: kind, Err: typed, Key: key}
	}

	syncedAt := e.now()
	e.transition(func(s *SyncStatus) {
		s.State = SyncSucceeded
		s.LastSuccessAt = syncedAt
	})
	e.metrics.IncrementSyncAttempt(string(SyncSucceeded))
	e.logger.InfoContext(ctx, "sync push succeeded", "key", key, "etag", info.ETag)
	return SyncOutcome{Status: SyncSucceeded, Key: key, ETag: info.ETag, SyncedAt: syncedAt}
}

func (e *SyncEngine) put(ctx context.Context, key string, record domain.StoredRecord) (blob.Info, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode record: %w", err)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	info, err := e.remote.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"record-id": record.ID},
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		// Some transports surface a bare read error once the deadline fires.
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return info, err
}

func (e *SyncEngine) transition(mutate func(*SyncStatus)) {
	e.mu.Lock()
	mutate(&e.status)
	snapshot := e.status
	observers := append([]func(SyncStatus){}, e.observers...)
	e.mu.Unlock()
	for _, fn := range observers {
		fn(snapshot)
	}
}

// ClassifyFailure maps a push error to NetworkUnavailable, RemoteRejected or
// Timeout.
func ClassifyFailure(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}
	if kind := domain.KindOf(err); kind == domain.KindNetworkUnavailable || kind == domain.KindRemoteRejected || kind == domain.KindTimeout {
		return kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.KindTimeout
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return domain.KindRemoteRejected
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return domain.KindRemoteRejected
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.KindTimeout
		}
		return domain.KindNetworkUnavailable
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return domain.KindNetworkUnavailable
	}
	return domain.KindRemoteRejected
}
