package domain

import (
	"fmt"
	"strings"
	"time"
)

// StepName identifies one entry of the research catalogue
type StepName string

const (
	StepWebSearch        StepName = "web_search"
	StepFinancial        StepName = "financial"
	StepEncyclopedia     StepName = "encyclopedia"
	StepNews             StepName = "news"
	StepVerification     StepName = "verification"
	StepSynthesis        StepName = "synthesis"
	StepPersonalizedPlan StepName = "personalized_plan"
	StepGenericPlan      StepName = "generic_plan"
)

// StepStatus is the completion marker of a step. The zero value means the
// step has not been attempted yet.
type StepStatus string

const (
	StepNotAttempted StepStatus = ""
	StepFailed       StepStatus = "failed"
	StepSucceeded    StepStatus = "succeeded"
)

// Attempted reports whether the step has run, regardless of its outcome
func (s StepStatus) Attempted() bool {
	return s == StepFailed || s == StepSucceeded
}

// String returns a printable form of the marker
func (s StepStatus) String() string {
	if s == StepNotAttempted {
		return "not_attempted"
	}
	return string(s)
}

// StepCategory orders steps in the catalogue. A step may only consume the
// outputs of steps in an earlier or equal category.
type StepCategory int

const (
	CategoryEvidence StepCategory = iota
	CategoryReconciliation
	CategoryAggregation
	CategoryOutput
)

func (c StepCategory) String() string {
	switch c {
	case CategoryEvidence:
		return "evidence"
	case CategoryReconciliation:
		return "reconciliation"
	case CategoryAggregation:
		return "aggregation"
	case CategoryOutput:
		return "output"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Entity identifies the company being researched
type Entity struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker,omitempty"`
}

// RequesterContext describes who asked for the research and why. Only the
// personalized plan consumes it.
type RequesterContext struct {
	Name            string   `json:"name,omitempty" yaml:"name"`
	Role            string   `json:"role,omitempty" yaml:"role"`
	Company         string   `json:"company,omitempty" yaml:"company"`
	Industry        string   `json:"industry,omitempty" yaml:"industry"`
	ProductService  string   `json:"product_service,omitempty" yaml:"product_service"`
	ResearchPurpose string   `json:"research_purpose,omitempty" yaml:"research_purpose"`
	FocusAreas      []string `json:"focus_areas,omitempty" yaml:"focus_areas"`
}

// IsZero reports whether no requester details were provided
func (r RequesterContext) IsZero() bool {
	return r.Name == "" && r.Role == "" && r.Company == "" && r.Industry == "" &&
		r.ProductService == "" && r.ResearchPurpose == "" && len(r.FocusAreas) == 0
}

// ResearchRequest represents an incoming research request
type ResearchRequest struct {
	ID        string           `json:"id"`
	Target    Entity           `json:"target"`
	Requester RequesterContext `json:"requester"`
	// PlanVariants overrides the configured number of plan documents (1 or 2)
	PlanVariants int                    `json:"plan_variants,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the request carries a usable target
func (r *ResearchRequest) Validate() error {
	if strings.TrimSpace(r.Target.Name) == "" {
		return ErrEmptyTarget
	}
	if r.PlanVariants < 0 || r.PlanVariants > 2 {
		return fmt.Errorf("plan_variants must be 1 or 2, got %d", r.PlanVariants)
	}
	return nil
}

// ConfidenceLevel grades a detected conflict
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// ParseConfidence maps free text onto a confidence level
func ParseConfidence(s string) (ConfidenceLevel, bool) {
	switch ConfidenceLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh, true
	case ConfidenceMedium:
		return ConfidenceMedium, true
	case ConfidenceLow:
		return ConfidenceLow, true
	}
	return "", false
}

// Conflict is a contradiction between two evidence sources about one fact
type Conflict struct {
	Description string          `json:"description"`
	Sources     []string        `json:"sources"`
	Confidence  ConfidenceLevel `json:"confidence"`
}

// NoSynthesisAvailable replaces the synthesis text when aggregation failed
const NoSynthesisAvailable = "No synthesis available."

// Narrative is the consolidated synthesis text. Unavailable marks the
// explicit failure sentinel, which is never confused with an empty success.
type Narrative struct {
	Text        string `json:"text"`
	Unavailable bool   `json:"unavailable,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// UnavailableNarrative builds the synthesis failure sentinel
func UnavailableNarrative(reason string) Narrative {
	return Narrative{Text: NoSynthesisAvailable, Unavailable: true, Reason: reason}
}

// Usable returns the text downstream steps should consume
func (n Narrative) Usable() string {
	if n.Unavailable || strings.TrimSpace(n.Text) == "" {
		return NoSynthesisAvailable
	}
	return n.Text
}

// PlanVariant distinguishes the output documents
type PlanVariant string

const (
	PlanPersonalized PlanVariant = "personalized"
	PlanGeneric      PlanVariant = "generic"
)

// NoPlanGenerated is the content of a plan whose generation produced nothing
const NoPlanGenerated = "No plan generated - empty response from LLM"

// Plan is a generated narrative document derived from the synthesis
type Plan struct {
	ID           string      `json:"id"`
	Variant      PlanVariant `json:"variant"`
	Target       string      `json:"target_company"`
	Content      string      `json:"content"`
	Personalized bool        `json:"personalized"`
	Sections     []string    `json:"sections,omitempty"`
	GeneratedAt  time.Time   `json:"generated_at"`
	Error        string      `json:"error,omitempty"`
}

// Failed reports whether the plan is the failure sentinel
func (p Plan) Failed() bool {
	return p.Error != ""
}

// Source is a citation collected from succeeded evidence
type Source struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Provider string `json:"provider"`
}

// ProgressEntry is one human readable line of the run's audit trail
type ProgressEntry struct {
	Step    StepName  `json:"step,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StepRecord summarizes one step's final marker
type StepRecord struct {
	Name     StepName      `json:"name"`
	Category StepCategory  `json:"category"`
	Status   StepStatus    `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ResearchReport is the final projection of a research run
type ResearchReport struct {
	ID          string                 `json:"id"`
	RequestID   string                 `json:"request_id"`
	Target      Entity                 `json:"target"`
	Requester   RequesterContext       `json:"requester"`
	Evidence    EvidenceBundle         `json:"evidence"`
	Conflicts   []Conflict             `json:"conflicts"`
	Synthesis   Narrative              `json:"synthesis"`
	Plans       []Plan                 `json:"plans"`
	Sources     []Source               `json:"sources"`
	Progress    []ProgressEntry        `json:"progress"`
	Steps       []StepRecord           `json:"steps"`
	Iterations  int                    `json:"iterations"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Step returns the record for the named step
func (r *ResearchReport) Step(name StepName) (StepRecord, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepRecord{}, false
}

// FailedSteps lists the steps that were attempted and failed
func (r *ResearchReport) FailedSteps() []StepName {
	var failed []StepName
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// ReportSummary is the listing form of a stored report
type ReportSummary struct {
	ID          string    `json:"id"`
	Company     string    `json:"company"`
	Iterations  int       `json:"iterations"`
	PlanCount   int       `json:"plan_count"`
	CompletedAt time.Time `json:"completed_at"`
}

// Summarize builds the listing form of a report
func (r *ResearchReport) Summarize() ReportSummary {
	return ReportSummary{
		ID:          r.ID,
		Company:     r.Target.Name,
		Iterations:  r.Iterations,
		PlanCount:   len(r.Plans),
		CompletedAt: r.CompletedAt,
	}
}

// Message represents a chat message sent to a language model
type Message struct {
	Role      string    `json:"role"` // "system", "user", "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
