package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

var (
	// ErrAlreadyAttempted is returned when recording a step a second time
	ErrAlreadyAttempted = errors.New("step already attempted")
	// ErrUnknownStep is returned for steps outside the run's catalogue
	ErrUnknownStep = errors.New("step not in catalogue")
	// ErrEmptyOutcome is returned when an outcome carries no terminal status
	ErrEmptyOutcome = errors.New("outcome has no terminal status")
)

// Outcome is the tagged result of a step: success with a payload, or failure
// with a reason and an optional sentinel payload.
type Outcome struct {
	status   domain.StepStatus
	payload  any
	reason   string
	duration time.Duration
}

// Succeeded builds a success outcome. An empty payload is still a success.
func Succeeded(payload any) Outcome {
	return Outcome{status: domain.StepSucceeded, payload: payload}
}

// Failed builds a failure outcome. The sentinel, when non-nil, is stored as
// the step's output so readers can tell failure apart from absence.
func Failed(reason string, sentinel any) Outcome {
	return Outcome{status: domain.StepFailed, payload: sentinel, reason: reason}
}

// WithDuration returns a copy of the outcome annotated with its run time
func (o Outcome) WithDuration(d time.Duration) Outcome {
	o.duration = d
	return o
}

func (o Outcome) Status() domain.StepStatus { return o.status }
func (o Outcome) Payload() any              { return o.payload }
func (o Outcome) Reason() string            { return o.reason }
func (o Outcome) Duration() time.Duration   { return o.duration }
func (o Outcome) OK() bool                  { return o.status == domain.StepSucceeded }

// View is the read access a step gets to the shared state. It cannot record
// markers; its only write is appending progress entries.
type View interface {
	Target() domain.Entity
	Requester() domain.RequesterContext
	Evidence() domain.EvidenceBundle
	Conflicts() []domain.Conflict
	Synthesis() (domain.Narrative, bool)
	Status(name domain.StepName) domain.StepStatus
	Progressf(format string, args ...interface{})
}

// ResearchState is the shared accumulator of one research run
type ResearchState struct {
	mu         sync.RWMutex
	id         string
	request    domain.ResearchRequest
	steps      []domain.StepName
	outputs    map[domain.StepName]any
	markers    map[domain.StepName]domain.StepStatus
	reasons    map[domain.StepName]string
	durations  map[domain.StepName]time.Duration
	progress   []domain.ProgressEntry
	next       domain.StepName
	iterations int
	createdAt  time.Time
	updatedAt  time.Time
}

// NewResearchState creates the state for one run over the given catalogue.
// Every step starts not attempted.
func NewResearchState(request domain.ResearchRequest, steps []domain.StepName) *ResearchState {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Timestamp.IsZero() {
		request.Timestamp = time.Now()
	}

	now := time.Now()
	return &ResearchState{
		id:        uuid.NewString(),
		request:   request,
		steps:     append([]domain.StepName(nil), steps...),
		outputs:   make(map[domain.StepName]any),
		markers:   make(map[domain.StepName]domain.StepStatus),
		reasons:   make(map[domain.StepName]string),
		durations: make(map[domain.StepName]time.Duration),
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the identifier the final report will carry
func (s *ResearchState) ID() string {
	return s.id
}

// Request returns the request the run was created from
func (s *ResearchState) Request() domain.ResearchRequest {
	return s.request
}

// Target returns the immutable research target
func (s *ResearchState) Target() domain.Entity {
	return s.request.Target
}

// Requester returns the immutable requester context
func (s *ResearchState) Requester() domain.RequesterContext {
	return s.request.Requester
}

// Steps returns the catalogue order of this run
func (s *ResearchState) Steps() []domain.StepName {
	return append([]domain.StepName(nil), s.steps...)
}

// Record stores a step outcome. Markers are monotonic: a step that was
// attempted can never be recorded again.
func (s *ResearchState) Record(name domain.StepName, outcome Outcome) error {
	if !outcome.status.Attempted() {
		return fmt.Errorf("%s: %w", name, ErrEmptyOutcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inCatalogue(name) {
		return fmt.Errorf("%s: %w", name, ErrUnknownStep)
	}
	if s.markers[name].Attempted() {
		return fmt.Errorf("%s: %w", name, ErrAlreadyAttempted)
	}

	s.markers[name] = outcome.status
	if outcome.payload != nil {
		s.outputs[name] = outcome.payload
	}
	if outcome.reason != "" {
		s.reasons[name] = outcome.reason
	}
	s.durations[name] = outcome.duration
	s.updatedAt = time.Now()
	return nil
}

func (s *ResearchState) inCatalogue(name domain.StepName) bool {
	for _, step := range s.steps {
		if step == name {
			return true
		}
	}
	return false
}

// Status returns the completion marker of a step
func (s *ResearchState) Status(name domain.StepName) domain.StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markers[name]
}

// Reason returns the recorded failure reason of a step
func (s *ResearchState) Reason(name domain.StepName) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reasons[name]
}

// Output returns the raw payload stored for a step
func (s *ResearchState) Output(name domain.StepName) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.outputs[name]
	return v, ok
}

// Pending lists the steps that have not been attempted, in catalogue order
func (s *ResearchState) Pending() []domain.StepName {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []domain.StepName
	for _, name := range s.steps {
		if !s.markers[name].Attempted() {
			pending = append(pending, name)
		}
	}
	return pending
}

// Evidence bundles the payloads of every evidence step that succeeded
func (s *ResearchState) Evidence() domain.EvidenceBundle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bundle domain.EvidenceBundle
	for _, name := range s.steps {
		if s.markers[name] != domain.StepSucceeded {
			continue
		}
		if ev, ok := s.outputs[name].(domain.Evidence); ok {
			bundle.Add(ev)
		}
	}
	return bundle
}

// Conflicts returns the reconciliation result, empty when it did not run
func (s *ResearchState) Conflicts() []domain.Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conflicts, _ := s.outputs[domain.StepVerification].([]domain.Conflict)
	return append([]domain.Conflict(nil), conflicts...)
}

// Synthesis returns the synthesis narrative and whether it was attempted
func (s *ResearchState) Synthesis() (domain.Narrative, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.markers[domain.StepSynthesis].Attempted() {
		return domain.Narrative{}, false
	}
	narrative, ok := s.outputs[domain.StepSynthesis].(domain.Narrative)
	if !ok {
		return domain.UnavailableNarrative(s.reasons[domain.StepSynthesis]), true
	}
	return narrative, true
}

// Plans returns the generated plan documents in catalogue order
func (s *ResearchState) Plans() []domain.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var plans []domain.Plan
	for _, name := range s.steps {
		if plan, ok := s.outputs[name].(domain.Plan); ok {
			plans = append(plans, plan)
		}
	}
	return plans
}

// AppendProgress adds an entry to the audit trail
func (s *ResearchState) AppendProgress(step domain.StepName, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendProgressLocked(step, message)
}

func (s *ResearchState) appendProgressLocked(step domain.StepName, message string) {
	s.progress = append(s.progress, domain.ProgressEntry{
		Step:    step,
		Message: message,
		At:      time.Now(),
	})
	s.updatedAt = time.Now()
}

// Progress returns a copy of the audit trail
func (s *ResearchState) Progress() []domain.ProgressEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ProgressEntry(nil), s.progress...)
}

// SetNext records the scheduler's decision
func (s *ResearchState) SetNext(name domain.StepName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = name
}

// Next returns the scheduler's last decision, empty once done
func (s *ResearchState) Next() domain.StepName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

// IncrementIteration counts one scheduler iteration
func (s *ResearchState) IncrementIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations++
	return s.iterations
}

// Iterations returns the number of scheduler iterations used
func (s *ResearchState) Iterations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iterations
}

// ViewFor returns the view handed to the named step. Progress entries it
// appends are attributed to that step.
func (s *ResearchState) ViewFor(name domain.StepName) View {
	return &stepView{state: s, step: name}
}

// AttemptView returns a view scoped to one attempt of the named step.
// After release the view stops writing to the progress log, so a step
// abandoned on timeout cannot interleave entries with later steps.
func (s *ResearchState) AttemptView(name domain.StepName) (View, func()) {
	v := &stepView{state: s, step: name}
	return v, func() {
		s.mu.Lock()
		v.sealed = true
		s.mu.Unlock()
	}
}

// Projection returns the immutable final form of the run
func (s *ResearchState) Projection() *domain.ResearchReport {
	evidence := s.Evidence()
	synthesis, _ := s.Synthesis()

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.StepRecord, 0, len(s.steps))
	for _, name := range s.steps {
		records = append(records, domain.StepRecord{
			Name:     name,
			Status:   s.markers[name],
			Reason:   s.reasons[name],
			Duration: s.durations[name],
		})
	}

	var plans []domain.Plan
	for _, name := range s.steps {
		if plan, ok := s.outputs[name].(domain.Plan); ok {
			plans = append(plans, plan)
		}
	}
	conflicts, _ := s.outputs[domain.StepVerification].([]domain.Conflict)

	return &domain.ResearchReport{
		ID:          s.id,
		RequestID:   s.request.ID,
		Target:      s.request.Target,
		Requester:   s.request.Requester,
		Evidence:    evidence,
		Conflicts:   append([]domain.Conflict(nil), conflicts...),
		Synthesis:   synthesis,
		Plans:       plans,
		Sources:     evidence.Sources(),
		Progress:    append([]domain.ProgressEntry(nil), s.progress...),
		Steps:       records,
		Iterations:  s.iterations,
		StartedAt:   s.createdAt,
		CompletedAt: s.updatedAt,
		Metadata:    s.request.Metadata,
	}
}

type stepView struct {
	state *ResearchState
	step  domain.StepName
	// sealed is guarded by state.mu
	sealed bool
}

func (v *stepView) Target() domain.Entity                        { return v.state.Target() }
func (v *stepView) Requester() domain.RequesterContext           { return v.state.Requester() }
func (v *stepView) Evidence() domain.EvidenceBundle              { return v.state.Evidence() }
func (v *stepView) Conflicts() []domain.Conflict                 { return v.state.Conflicts() }
func (v *stepView) Synthesis() (domain.Narrative, bool)          { return v.state.Synthesis() }
func (v *stepView) Status(name domain.StepName) domain.StepStatus { return v.state.Status(name) }

func (v *stepView) Progressf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.sealed {
		return
	}
	s.appendProgressLocked(v.step, message)
}
