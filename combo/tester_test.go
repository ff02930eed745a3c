package combo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/intent"
	"github.com/snow-ghost/readiness/llm/mock"
	"github.com/snow-ghost/readiness/pkg/progress"
	"github.com/snow-ghost/readiness/pkg/store"
	"github.com/snow-ghost/readiness/pkg/tokens"
	"github.com/snow-ghost/readiness/residency"
	"github.com/snow-ghost/readiness/testkit"
)

func oracleGateway() *mock.Gateway {
	return mock.NewGateway().SetFallback(mock.Oracle(testkit.OracleRules()))
}

func TestRunCombo_OraclePassesEverything(t *testing.T) {
	tester := NewTester(intent.NewRouter(oracleGateway(), intent.Options{}), Options{})

	score := tester.RunCombo(context.Background(), "m", "e")
	assert.Equal(t, len(testkit.Matrix()), score.TotalTests)
	assert.Equal(t, 100, score.OverallScore)
	assert.Equal(t, 100, score.MainScore)
	assert.Equal(t, 100, score.ExecutorScore)
	assert.Zero(t, score.SkippedTests)
	assert.Zero(t, score.TimedOutTests)
	for _, tier := range core.Tiers {
		assert.InDelta(t, 100, score.TierScores[tier], 1e-9, tier)
	}
}

func TestRunCombo_Idempotent(t *testing.T) {
	gw := mock.NewGateway().
		Register("m", mock.Degraded(mock.Oracle(testkit.OracleRules()), 3)).
		Register("e", mock.Oracle(testkit.OracleRules()))
	tester := NewTester(intent.NewRouter(gw, intent.Options{}), Options{})

	first := tester.RunCombo(context.Background(), "m", "e")
	second := tester.RunCombo(context.Background(), "m", "e")
	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, first.MainScore, second.MainScore)
	assert.Equal(t, first.CategoryScores, second.CategoryScores)
}

func TestRunCombo_SkipsAfterRepeatedTimeouts(t *testing.T) {
	gw := mock.NewGateway().
		Register("slow", mock.Slow(mock.Oracle(testkit.OracleRules()), time.Second)).
		Register("e", mock.Oracle(testkit.OracleRules()))
	tester := NewTester(intent.NewRouter(gw, intent.Options{}), Options{TaskTimeout: 20 * time.Millisecond})

	score := tester.RunCombo(context.Background(), "slow", "e")
	assert.Equal(t, DefaultMaxTimeoutsPerCombo, score.TimedOutTests)
	assert.Equal(t, len(testkit.Matrix())-DefaultMaxTimeoutsPerCombo, score.SkippedTests)
	assert.Zero(t, score.OverallScore)
	assert.Zero(t, score.MainScore, "no valid tests")

	for i, r := range score.Results {
		if i < DefaultMaxTimeoutsPerCombo {
			assert.True(t, r.TimedOut, r.TestID)
			continue
		}
		assert.True(t, r.Skipped, r.TestID)
	}
	assert.Equal(t, 0, gw.CallsFor("e"), "a timed-out decision never reaches the executor")
}

func TestRunAll_ExcludesTimedOutMain(t *testing.T) {
	rules := testkit.OracleRules()
	gw := mock.NewGateway().
		Register("slow", mock.Slow(mock.Oracle(rules), time.Second)).
		Register("fast", mock.Oracle(rules)).
		Register("e1", mock.Oracle(rules)).
		Register("e2", mock.Oracle(rules))
	rec := &progress.Recorder{}
	mem := store.NewMemoryStore()
	tester := NewTester(intent.NewRouter(gw, intent.Options{}), Options{
		TaskTimeout: 20 * time.Millisecond,
		Store:       mem,
		Broadcaster: rec,
	})

	scores := tester.RunAll(context.Background(), []string{"slow", "fast"}, []string{"e1", "e2"})
	require.Len(t, scores, 4)

	assert.Equal(t, "fast", scores[0].MainModel)
	assert.Equal(t, 100, scores[0].OverallScore)
	assert.Equal(t, "fast", scores[1].MainModel)
	assert.Equal(t, 100, scores[1].OverallScore)

	byKey := map[string]core.ComboScore{}
	for _, s := range scores {
		byKey[s.Key()] = s
	}
	first := byKey["slow+e1"]
	assert.False(t, first.MainExcluded)
	assert.Equal(t, DefaultMaxTimeoutsPerCombo, first.TimedOutTests)

	excluded := byKey["slow+e2"]
	assert.True(t, excluded.MainExcluded)
	assert.Zero(t, excluded.OverallScore)
	assert.Equal(t, excluded.TotalTests, excluded.SkippedTests)

	exclusions := rec.OfKind(core.EventExclusion)
	require.Len(t, exclusions, 1)
	assert.Equal(t, core.StatusExcluded, exclusions[0].Status)
	assert.Equal(t, "e2", exclusions[0].ExecutorModel)

	saved, err := mem.ListComboScores(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, saved, 4)
	fastOnly, err := mem.ListComboScores(context.Background(), "fast")
	require.NoError(t, err)
	assert.Len(t, fastOnly, 2)
}

func TestRunAll_CancelledReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &progress.Recorder{}
	tester := NewTester(intent.NewRouter(oracleGateway(), intent.Options{}), Options{Broadcaster: rec})

	scores := tester.RunAll(ctx, []string{"a", "b"}, []string{"x"})
	assert.Empty(t, scores)

	combos := rec.OfKind(core.EventCombo)
	require.NotEmpty(t, combos)
	assert.Equal(t, core.StatusCancelled, combos[len(combos)-1].Status)
}

func TestNewTester_FitsPairContext(t *testing.T) {
	reg := tokens.NewEncoderRegistry()
	reg.SetFallback(tokens.NewMockEncoder())
	loader := residency.NewLoader(mock.NewRuntime(), residency.Options{PairContext: 1024})

	tester := NewTester(intent.NewRouter(oracleGateway(), intent.Options{}), Options{Loader: loader, Tokens: reg})
	need := MaxPromptTokens(reg, tester.Cases())
	require.Positive(t, need)
	assert.Equal(t, residency.PairContextFor(1024, need), loader.PairContext())
}
