package workflow

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ncolesummers/company-research-agent/internal/testutil"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/llm"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_CompletesReferenceCatalogue(t *testing.T) {
	tests := []struct {
		name       string
		variants   int
		iterations int
		plans      []domain.PlanVariant
	}{
		{
			name:       "personalized_only",
			variants:   1,
			iterations: 7,
			plans:      []domain.PlanVariant{domain.PlanPersonalized},
		},
		{
			name:       "both_plans",
			variants:   2,
			iterations: 8,
			plans:      []domain.PlanVariant{domain.PlanPersonalized, domain.PlanGeneric},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			sup := f.supervisor(t, tt.variants, SupervisorConfig{})
			st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

			require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

			assert.Equal(t, tt.iterations, st.Iterations())
			assert.Equal(t, tt.iterations, sup.Budget())
			assert.Empty(t, st.Pending())
			assert.Equal(t, domain.StepName(""), st.Next())
			for _, name := range sup.Catalogue().Names() {
				assert.Equal(t, domain.StepSucceeded, st.Status(name), name)
			}
			for kind, p := range f.providers {
				assert.Equal(t, 1, p.Calls(), "provider %s", kind)
			}
			assert.Equal(t, 1, f.detector.Calls)
			assert.Equal(t, 1+tt.variants, f.generator.PromptCount())

			plans := st.Plans()
			require.Len(t, plans, len(tt.plans))
			for i, variant := range tt.plans {
				assert.Equal(t, variant, plans[i].Variant)
				assert.Equal(t, "Acme plan", plans[i].Content)
				assert.Equal(t, "Acme Corp", plans[i].Target)
				assert.False(t, plans[i].Failed())
			}
			synthesis, ok := st.Synthesis()
			require.True(t, ok)
			assert.Equal(t, "Acme synthesis", synthesis.Text)
		})
	}
}

func TestSupervisor_SelectNext(t *testing.T) {
	f := newFixture()
	sup := f.supervisor(t, 1, SupervisorConfig{})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	next, ok := sup.SelectNext(st)
	require.True(t, ok)
	assert.Equal(t, domain.StepWebSearch, next)

	require.NoError(t, st.Record(domain.StepWebSearch, state.Failed("offline", nil)))
	next, ok = sup.SelectNext(st)
	require.True(t, ok)
	assert.Equal(t, domain.StepFinancial, next, "a failed step counts as attempted")

	for _, name := range sup.Catalogue().Names()[1:] {
		require.NoError(t, st.Record(name, state.Succeeded(nil)))
	}
	_, ok = sup.SelectNext(st)
	assert.False(t, ok)
}

func TestSupervisor_StepsSeeEarlierMarkersAttempted(t *testing.T) {
	var violations []string
	check := func(ctx context.Context, view state.View) state.Outcome {
		return state.Succeeded(nil)
	}
	a := &fakeStep{name: "a", category: domain.CategoryEvidence, run: check}
	b := &fakeStep{name: "b", category: domain.CategoryEvidence, run: func(ctx context.Context, view state.View) state.Outcome {
		return state.Failed("b broke", nil)
	}}
	c := &fakeStep{name: "c", category: domain.CategoryOutput, run: func(ctx context.Context, view state.View) state.Outcome {
		for _, name := range []domain.StepName{"a", "b"} {
			if !view.Status(name).Attempted() {
				violations = append(violations, string(name))
			}
		}
		if view.Status("c").Attempted() {
			violations = append(violations, "c")
		}
		return state.Succeeded(nil)
	}}

	sup := newFakeSupervisor(t, SupervisorConfig{}, a, b, c)
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))
	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	assert.Empty(t, violations)
	assert.Equal(t, domain.StepFailed, st.Status("b"))
	assert.Equal(t, "b broke", st.Reason("b"))
	for _, s := range []*fakeStep{a, b, c} {
		assert.Equal(t, 1, s.Calls(), string(s.name))
	}
	assert.ErrorIs(t, st.Record("a", state.Succeeded(nil)), state.ErrAlreadyAttempted)
}

func TestSupervisor_AllEvidenceFails(t *testing.T) {
	f := newFixture()
	for _, p := range f.providers {
		p.Err = errors.New("network unreachable")
	}
	sup := f.supervisor(t, 1, SupervisorConfig{})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	for _, name := range []domain.StepName{domain.StepWebSearch, domain.StepFinancial, domain.StepEncyclopedia, domain.StepNews} {
		assert.Equal(t, domain.StepFailed, st.Status(name), name)
		assert.Equal(t, "network unreachable", st.Reason(name))
	}
	assert.Equal(t, 1, f.detector.Calls, "verification runs on an empty bundle")
	assert.True(t, f.detector.LastBundle.IsEmpty())
	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepVerification))
	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepSynthesis))
	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepPersonalizedPlan))
	assert.Equal(t, 7, st.Iterations())
}

func TestSupervisor_EmptyEvidenceSucceeds(t *testing.T) {
	f := newFixture()
	f.providers[domain.EvidenceNews].Evidence = &domain.NewsFeed{Items: []domain.NewsItem{}}
	sup := f.supervisor(t, 1, SupervisorConfig{})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepNews))
	bundle := st.Evidence()
	require.NotNil(t, bundle.News)
	assert.True(t, bundle.News.Empty())
}

func TestSupervisor_SynthesisFailureStillProducesPlans(t *testing.T) {
	f := newFixture()
	f.generator = routedGenerator("   ", "Plan without synthesis")
	sup := f.supervisor(t, 2, SupervisorConfig{})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	assert.Equal(t, domain.StepFailed, st.Status(domain.StepSynthesis))
	assert.Equal(t, llm.ErrEmptyResponse.Error(), st.Reason(domain.StepSynthesis))

	synthesis, ok := st.Synthesis()
	require.True(t, ok, "failed synthesis leaves its sentinel")
	assert.True(t, synthesis.Unavailable)
	assert.Equal(t, domain.NoSynthesisAvailable, synthesis.Text)

	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepPersonalizedPlan))
	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepGenericPlan))
	for i := 1; i < f.generator.PromptCount(); i++ {
		assert.Contains(t, f.generator.PromptAt(i), domain.NoSynthesisAvailable)
	}
}

func TestSupervisor_EmptyPlanBecomesSentinel(t *testing.T) {
	f := newFixture()
	f.generator = routedGenerator("Acme synthesis", "")
	sup := f.supervisor(t, 1, SupervisorConfig{})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	assert.Equal(t, domain.StepFailed, st.Status(domain.StepPersonalizedPlan))
	plans := st.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, domain.NoPlanGenerated, plans[0].Content)
	assert.Equal(t, llm.ErrEmptyResponse.Error(), plans[0].Error)
	assert.Equal(t, "Acme Corp", plans[0].Target)
	assert.True(t, plans[0].Failed())
}

func TestSupervisor_StepTimeout(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	slow := &fakeStep{name: "slow", category: domain.CategoryEvidence, run: func(ctx context.Context, view state.View) state.Outcome {
		<-block
		return state.Succeeded("too late")
	}}
	after := &fakeStep{name: "after", category: domain.CategoryOutput}

	sup := newFakeSupervisor(t, SupervisorConfig{StepTimeout: 20 * time.Millisecond}, slow, after)
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	assert.Equal(t, domain.StepFailed, st.Status("slow"))
	assert.Equal(t, "step timed out", st.Reason("slow"))
	_, stored := st.Output("slow")
	assert.False(t, stored)
	assert.Equal(t, domain.StepSucceeded, st.Status("after"))
}

func TestSupervisor_AbandonedStepCannotWriteProgress(t *testing.T) {
	unblock := make(chan struct{})
	finished := make(chan struct{})

	slow := &fakeStep{name: "slow", category: domain.CategoryEvidence, run: func(ctx context.Context, view state.View) state.Outcome {
		defer close(finished)
		<-unblock
		view.Progressf("slow late entry")
		return state.Succeeded("too late")
	}}
	next := &fakeStep{name: "next", category: domain.CategoryOutput, run: func(ctx context.Context, view state.View) state.Outcome {
		view.Progressf("next entry")
		return state.Succeeded("done")
	}}

	sup := newFakeSupervisor(t, SupervisorConfig{StepTimeout: 20 * time.Millisecond}, slow, next)
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))
	close(unblock)
	<-finished

	assert.Equal(t, domain.StepFailed, st.Status("slow"))

	var trail []string
	for _, entry := range st.Progress() {
		trail = append(trail, string(entry.Step)+": "+entry.Message)
	}
	assert.Contains(t, trail, "next: next entry")
	assert.NotContains(t, trail, "slow: slow late entry")
}

func TestSupervisor_PanicLoggedToConfiguredOutput(t *testing.T) {
	var buf syncBuffer
	observability.SetLogOutput(&buf)
	t.Cleanup(func() { observability.SetLogOutput(io.Discard) })

	bad := &fakeStep{name: "bad", category: domain.CategoryEvidence, run: func(ctx context.Context, view state.View) state.Outcome {
		panic("boom")
	}}
	sup := newFakeSupervisor(t, SupervisorConfig{}, bad)
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))
	assert.Contains(t, buf.String(), "Step panicked")
}

func TestSupervisor_TimeoutLeavesSentinel(t *testing.T) {
	f := newFixture()
	f.generator = &testutil.MockGenerator{
		GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
			if isSynthesisPrompt(prompt) {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "Acme plan", nil
		},
	}
	sup := f.supervisor(t, 1, SupervisorConfig{StepTimeout: 30 * time.Millisecond})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	assert.Equal(t, domain.StepFailed, st.Status(domain.StepSynthesis))
	assert.Equal(t, "step timed out", st.Reason(domain.StepSynthesis))
	synthesis, ok := st.Synthesis()
	require.True(t, ok)
	assert.True(t, synthesis.Unavailable)
	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepPersonalizedPlan))
}

func TestSupervisor_AbnormalSteps(t *testing.T) {
	tests := []struct {
		name   string
		run    func(ctx context.Context, view state.View) state.Outcome
		reason string
	}{
		{
			name: "panic",
			run: func(ctx context.Context, view state.View) state.Outcome {
				panic("boom")
			},
			reason: "panic: boom",
		},
		{
			name: "no_outcome",
			run: func(ctx context.Context, view state.View) state.Outcome {
				return state.Outcome{}
			},
			reason: errNoOutcome.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := &fakeStep{name: "bad", category: domain.CategoryEvidence, run: tt.run}
			next := &fakeStep{name: "next", category: domain.CategoryAggregation}

			sup := newFakeSupervisor(t, SupervisorConfig{}, bad, next)
			st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

			require.NoError(t, sup.Run(testutil.NewTestContext(t), st))
			assert.Equal(t, domain.StepFailed, st.Status("bad"))
			assert.Equal(t, tt.reason, st.Reason("bad"))
			assert.Equal(t, domain.StepSucceeded, st.Status("next"))
			assert.Equal(t, 2, st.Iterations())
		})
	}
}

func TestSupervisor_ParallelEvidenceCountsOneIteration(t *testing.T) {
	f := newFixture()
	for _, p := range f.providers {
		p.Delay = 10 * time.Millisecond
	}
	f.providers[domain.EvidenceFinancial].Err = errors.New("quota exceeded")

	sup := f.supervisor(t, 1, SupervisorConfig{ParallelEvidence: true})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	assert.Equal(t, 4, st.Iterations())
	for kind, p := range f.providers {
		assert.Equal(t, 1, p.Calls(), "provider %s", kind)
	}
	assert.Equal(t, domain.StepFailed, st.Status(domain.StepFinancial))
	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepWebSearch))
	assert.Equal(t, domain.StepSucceeded, st.Status(domain.StepPersonalizedPlan))
}

func TestSupervisor_BudgetExhausted(t *testing.T) {
	f := newFixture()
	sup := f.supervisor(t, 1, SupervisorConfig{MaxIterations: 3})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	err := sup.Run(testutil.NewTestContext(t), st)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConverged)

	var nce *NonConvergenceError
	require.True(t, errors.As(err, &nce))
	assert.Equal(t, 3, nce.Budget)
	assert.Equal(t, []domain.StepName{
		domain.StepNews,
		domain.StepVerification,
		domain.StepSynthesis,
		domain.StepPersonalizedPlan,
	}, nce.Stuck)
	assert.Equal(t, 3, st.Iterations())
	assert.Equal(t, 0, f.detector.Calls)
	assert.True(t, strings.Contains(err.Error(), "budget of 3"))
}

func TestSupervisor_UnrecordableStepIsNotRerun(t *testing.T) {
	f := newFixture()
	sup := f.supervisor(t, 1, SupervisorConfig{})

	// the state does not know the news step, so its outcome can never be
	// recorded and its marker stays not attempted
	var names []domain.StepName
	for _, name := range sup.Catalogue().Names() {
		if name != domain.StepNews {
			names = append(names, name)
		}
	}
	st := state.NewResearchState(*testutil.NewTestRequest("Acme Corp"), names)

	err := sup.Run(testutil.NewTestContext(t), st)

	var nce *NonConvergenceError
	require.True(t, errors.As(err, &nce))
	assert.Equal(t, 7, nce.Budget)
	assert.Equal(t, domain.StepNews, nce.Stuck[0])
	assert.Equal(t, 1, f.providers[domain.EvidenceNews].Calls())
	assert.Equal(t, 7, st.Iterations())
	assert.Equal(t, 0, f.detector.Calls)
}

func TestSupervisor_ContextCancelled(t *testing.T) {
	t.Run("before_start", func(t *testing.T) {
		f := newFixture()
		sup := f.supervisor(t, 1, SupervisorConfig{})
		st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := sup.Run(ctx, st)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, st.Iterations())
		assert.Len(t, st.Pending(), 7)
	})

	t.Run("mid_run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		first := &fakeStep{name: "first", category: domain.CategoryEvidence, run: func(ctx context.Context, view state.View) state.Outcome {
			cancel()
			return state.Succeeded("done")
		}}
		second := &fakeStep{name: "second", category: domain.CategoryOutput}

		sup := newFakeSupervisor(t, SupervisorConfig{}, first, second)
		st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

		err := sup.Run(ctx, st)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, domain.StepFailed, st.Status("first"), "a result after cancellation is discarded")
		assert.Equal(t, domain.StepNotAttempted, st.Status("second"))
		assert.Equal(t, 0, second.Calls())
	})
}

func TestSupervisor_ProgressTrail(t *testing.T) {
	f := newFixture()
	f.providers[domain.EvidenceFinancial].Err = errors.New("quota exceeded")
	sup := f.supervisor(t, 1, SupervisorConfig{})
	st := sup.NewState(*testutil.NewTestRequest("Acme Corp"))

	require.NoError(t, sup.Run(testutil.NewTestContext(t), st))

	messages := make(map[domain.StepName]string)
	for _, entry := range st.Progress() {
		messages[entry.Step] = entry.Message
	}
	assert.Equal(t, "Found 1 web results", messages[domain.StepWebSearch])
	assert.Equal(t, "mock-financial unavailable: quota exceeded", messages[domain.StepFinancial])
	assert.Equal(t, "Encyclopedia article retrieved: Acme Corporation", messages[domain.StepEncyclopedia])
	assert.Equal(t, "Found 1 news articles", messages[domain.StepNews])
	assert.Equal(t, "No major conflicts detected", messages[domain.StepVerification])
	assert.Equal(t, "Synthesis complete", messages[domain.StepSynthesis])
	assert.Equal(t, "personalized plan generated", messages[domain.StepPersonalizedPlan])
}
