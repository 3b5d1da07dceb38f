package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"campreg/pkg/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// StepKind selects the completeness predicate of a step.
type StepKind string

const (
	StepPersonalInfo  StepKind = "personal_info"
	StepCampSelection StepKind = "camp_selection"
	StepReview        StepKind = "review"
)

// Step is one labeled page of the wizard.
type Step struct {
	Label string   `json:"label"`
	Kind  StepKind `json:"kind"`
}

// DefaultSteps returns the three-step registration flow.
func DefaultSteps() []Step {
	return []Step{
		{Label: "Personal Information", Kind: StepPersonalInfo},
		{Label: "Camp Selection", Kind: StepCampSelection},
		{Label: "Review & Submit", Kind: StepReview},
	}
}

// Missing lists the fields that keep record from satisfying the step.
func (s Step) Missing(record domain.RegistrationRecord) []string {
	switch s.Kind {
	case StepCampSelection:
		if !record.HasSelectedCamp() {
			return []string{"selectedCamps"}
		}
	case StepReview:
		return record.MissingForSubmission()
	}
	return nil
}

// Stager durably stages the assembled record.
type Stager interface {
	Upsert(ctx context.Context, record domain.RegistrationRecord) (domain.StoredRecord, error)
	Pending(ctx context.Context) (domain.StoredRecord, bool, error)
}

// Pusher sends a staged record to the remote store.
type Pusher interface {
	Push(ctx context.Context, record domain.StoredRecord) SyncOutcome
	Status() SyncStatus
}

// CampAvailability decides whether a camp may be selected.
type CampAvailability interface {
	Selectable(name string) bool
}

// SubmitResult is the combined outcome of staging plus sync. A non-succeeded
// Sync means the record is saved locally but not yet sent.
type SubmitResult struct {
	Record domain.StoredRecord `json:"record"`
	Sync   SyncOutcome         `json:"sync"`
}

// Wizard sequences the registration steps and submits the assembled record.
type Wizard struct {
	steps     []Step
	assembler *Assembler
	stager    Stager
	pusher    Pusher
	camps     CampAvailability

	mu        sync.Mutex
	index     int
	lastError string

	submitting atomic.Bool
	sem        *semaphore.Weighted

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// WizardOption configures a Wizard.
type WizardOption func(*Wizard)

// WithSteps replaces the default step list.
func WithSteps(steps []Step) WizardOption {
	return func(w *Wizard) { w.steps = append([]Step(nil), steps...) }
}

// WithCampAvailability makes SetCamp refuse camps that are full or unknown.
func WithCampAvailability(c CampAvailability) WizardOption {
	return func(w *Wizard) { w.camps = c }
}

// WithLogger sets the wizard logger.
func WithLogger(logger *slog.Logger) WizardOption {
	return func(w *Wizard) { w.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) WizardOption {
	return func(w *Wizard) { w.metrics = m }
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) WizardOption {
	return func(w *Wizard) { w.tracer = t }
}

// NewWizard constructs a wizard at step 0 with an empty record.
func NewWizard(stager Stager, pusher Pusher, opts ...WizardOption) (*Wizard, error) {
	if stager == nil {
		return nil, fmt.Errorf("staging store is required")
	}
	if pusher == nil {
		return nil, fmt.Errorf("sync engine is required")
	}
	w := &Wizard{
		steps:     DefaultSteps(),
		assembler: NewAssembler(),
		stager:    stager,
		pusher:    pusher,
		sem:       semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if len(w.steps) == 0 {
		return nil, fmt.Errorf("at least one step is required")
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	if w.tracer == nil {
		w.tracer = defaultTracer()
	}
	return w, nil
}

// Steps returns the configured steps.
func (w *Wizard) Steps() []Step { return append([]Step(nil), w.steps...) }

// Index returns the current step index; len(Steps()) means complete.
func (w *Wizard) Index() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index
}

// Record returns a copy of the in-memory record.
func (w *Wizard) Record() domain.RegistrationRecord { return w.assembler.Record() }

// Apply merges step input into the in-memory record. A partial selecting a
// camp that is not available is refused whole and nothing is merged.
func (w *Wizard) Apply(partial domain.PartialRecord) (domain.RegistrationRecord, error) {
	if err := w.checkCamps(partial.SelectedCamps); err != nil {
		return w.assembler.Record(), err
	}
	return w.assembler.Apply(partial), nil
}

// SetCamp toggles one camp. Selecting a camp the catalog reports as full or
// unknown fails with ErrCampUnavailable; deselecting always succeeds.
func (w *Wizard) SetCamp(name string, selected bool) (domain.RegistrationRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return w.assembler.Record(), domain.NewError(domain.KindCampUnavailable, "camp name is required")
	}
	if selected && w.camps != nil && !w.camps.Selectable(name) {
		return w.assembler.Record(), domain.NewError(domain.KindCampUnavailable, fmt.Sprintf("camp %q is not available", name))
	}
	return w.assembler.SetCamp(name, selected), nil
}

// Advance moves to the next step when the current one is complete.
func (w *Wizard) Advance() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.index >= len(w.steps) {
		return domain.NewError(domain.KindStepIncomplete, "all steps are already complete")
	}
	if missing := w.steps[w.index].Missing(w.assembler.Record()); len(missing) > 0 {
		return stepIncomplete(w.steps[w.index], missing)
	}
	w.index++
	return nil
}

// Retreat moves to the previous step.
func (w *Wizard) Retreat() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.index == 0 {
		return domain.NewError(domain.KindInvalidStep, "already at the first step")
	}
	w.index--
	return nil
}

// Reset returns to step 0 and clears the in-memory record. Staged data is
// left alone.
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.index = 0
	w.lastError = ""
	w.assembler.Clear()
}

// Resume loads the staged record, if any, into memory and jumps to the final
// step so it can be resubmitted.
func (w *Wizard) Resume(ctx context.Context) (domain.StoredRecord, bool, error) {
	rec, found, err := w.stager.Pending(ctx)
	if err != nil {
		return domain.StoredRecord{}, false, asStoreUnavailable("read", err)
	}
	if !found {
		return domain.StoredRecord{}, false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.assembler.Load(rec)
	w.index = len(w.steps) - 1
	return rec, true, nil
}

// Submit stages the record and then pushes it. It is only valid on the final
// step (or after completion, to resubmit) once the final predicate holds.
// A concurrent call fails fast with ErrSubmissionInProgress.
func (w *Wizard) Submit(ctx context.Context) (SubmitResult, error) {
	if !w.sem.TryAcquire(1) {
		w.metrics.IncrementSubmit("in_progress")
		return SubmitResult{}, domain.NewError(domain.KindSubmissionInProgress, "a submission is already in progress")
	}
	defer w.sem.Release(1)
	w.submitting.Store(true)
	defer w.submitting.Store(false)

	ctx, span := w.tracer.Start(ctx, "wizard.submit")
	defer span.End()

	record, err := w.checkSubmittable()
	if err != nil {
		w.metrics.IncrementSubmit(string(domain.KindOf(err)))
		span.SetStatus(codes.Error, err.Error())
		return SubmitResult{}, err
	}

	stored, err := w.stage(ctx, record)
	if err != nil {
		w.setLastError(err.Error())
		w.metrics.IncrementSubmit(string(domain.KindStoreUnavailable))
		span.RecordError(err)
		span.SetStatus(codes.Error, "staging failed")
		w.logger.ErrorContext(ctx, "staging failed", "error", err)
		return SubmitResult{}, err
	}
	span.SetAttributes(attribute.String("campreg.record_id", stored.ID))

	w.mu.Lock()
	w.index = len(w.steps)
	w.assembler.SetIdentity(stored.ID, stored.CreatedAt, stored.UpdatedAt)
	w.mu.Unlock()
	w.metrics.IncrementSubmit("staged")
	w.logger.InfoContext(ctx, "registration staged", "id", stored.ID)

	outcome := w.pusher.Push(ctx, stored)
	if outcome.Err != nil {
		w.setLastError(outcome.Err.Error())
		span.SetAttributes(attribute.String("campreg.sync_failure", string(outcome.Failure)))
	} else {
		w.setLastError("")
	}
	return SubmitResult{Record: stored, Sync: outcome}, nil
}

// Resync pushes the staged record again without touching step state. found
// is false when nothing is staged.
func (w *Wizard) Resync(ctx context.Context) (outcome SyncOutcome, found bool, err error) {
	if !w.sem.TryAcquire(1) {
		return SyncOutcome{}, false, domain.NewError(domain.KindSubmissionInProgress, "a submission is already in progress")
	}
	defer w.sem.Release(1)

	rec, found, err := w.stager.Pending(ctx)
	if err != nil {
		return SyncOutcome{}, false, asStoreUnavailable("read", err)
	}
	if !found {
		return SyncOutcome{}, false, nil
	}
	outcome = w.pusher.Push(ctx, rec)
	if outcome.Err != nil {
		w.setLastError(outcome.Err.Error())
	} else {
		w.setLastError("")
	}
	return outcome, true, nil
}

func (w *Wizard) checkSubmittable() (domain.RegistrationRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	final := len(w.steps) - 1
	if w.index < final {
		return domain.RegistrationRecord{}, domain.NewError(domain.KindInvalidStep,
			fmt.Sprintf("submit is only available on step %q", w.steps[final].Label))
	}
	record := w.assembler.Record()
	if missing := record.MissingForSubmission(); len(missing) > 0 {
		return domain.RegistrationRecord{}, stepIncomplete(w.steps[final], missing)
	}
	if err := w.checkCamps(record.SelectedCamps); err != nil {
		return domain.RegistrationRecord{}, err
	}
	return record, nil
}

// checkCamps refuses selections of camps the catalog reports as full or
// unknown. Deselected entries are always allowed.
func (w *Wizard) checkCamps(camps map[string]bool) error {
	if w.camps == nil {
		return nil
	}
	var refused []string
	for name, on := range camps {
		if on && !w.camps.Selectable(name) {
			refused = append(refused, fmt.Sprintf("%q", name))
		}
	}
	if len(refused) == 0 {
		return nil
	}
	sort.Strings(refused)
	return domain.NewError(domain.KindCampUnavailable,
		fmt.Sprintf("camp %s is not available", strings.Join(refused, ", ")))
}

func (w *Wizard) stage(ctx context.Context, record domain.RegistrationRecord) (domain.StoredRecord, error) {
	ctx, span := w.tracer.Start(ctx, "staging.upsert")
	defer span.End()
	stored, err := w.stager.Upsert(ctx, record)
	if err != nil {
		w.metrics.IncrementUpsert("error")
		span.RecordError(err)
		return domain.StoredRecord{}, asStoreUnavailable("upsert", err)
	}
	w.metrics.IncrementUpsert("ok")
	return stored, nil
}

func (w *Wizard) setLastError(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastError = msg
}

func stepIncomplete(step Step, missing []string) error {
	return domain.NewError(domain.KindStepIncomplete,
		fmt.Sprintf("%s is incomplete: missing %s", step.Label, strings.Join(missing, ", ")))
}

func asStoreUnavailable(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return domain.StoreUnavailable(op, err)
}
