package chaos

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLab(t *testing.T) *Lab {
	t.Helper()
	lab, err := NewLab(context.Background(), t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return lab
}

func TestExperimentsHold(t *testing.T) {
	lab := newTestLab(t)
	engine := NewEngine(io.Discard, 0)
	engine.RegisterExperiments(lab)

	experiments := engine.Experiments()
	require.Len(t, experiments, 4)
	for _, exp := range experiments {
		t.Run(exp.Name, func(t *testing.T) {
			result, err := engine.RunExperiment(context.Background(), exp)
			require.NoError(t, err)
			assert.True(t, result.SteadyStateValid)
			assert.Empty(t, result.FailedAssertions)
			assert.True(t, result.HypothesisHeld)
		})
	}
	assert.Len(t, engine.Results(), 4)
	assert.FileExists(t, lab.ItemDB, "ledger restored after rollback")
	assert.NoFileExists(t, lab.TempFile)
}

func TestGameDay(t *testing.T) {
	lab := newTestLab(t)
	var out strings.Builder
	engine := NewEngine(&out, 0)
	engine.RegisterExperiments(lab)

	held, err := engine.ExecuteGameDay(context.Background(), GameDay{
		Name:      "terminal game day",
		Date:      time.Date(2023, time.January, 4, 0, 0, 0, 0, time.UTC),
		Scenarios: engine.Experiments(),
	})
	require.NoError(t, err)
	assert.True(t, held)
	assert.Contains(t, out.String(), "Experiment 4/4: missing-ledger-finalize")
	assert.Equal(t, 4, strings.Count(out.String(), "PASS hypothesis held"))
}

func TestFailedAssertion(t *testing.T) {
	engine := NewEngine(io.Discard, 0)
	result, err := engine.RunExperiment(context.Background(), Experiment{
		Name: "always-five",
		Observe: []Metric{{
			Name:  "value",
			Query: func(context.Context) (float64, error) { return 5, nil },
		}},
		Validation: []Assertion{
			{Metric: "value", Condition: func(v float64) bool { return v == 0 }, Message: "value should be zero"},
			{Metric: "missing", Condition: func(float64) bool { return true }, Message: "missing metric"},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.HypothesisHeld)
	assert.Equal(t, []string{"value should be zero", "missing metric (no observations)"}, result.FailedAssertions)
}

func TestSteadyStateAbort(t *testing.T) {
	engine := NewEngine(io.Discard, 0)
	executed := false
	result, err := engine.RunExperiment(context.Background(), Experiment{
		Name: "broken-baseline",
		SteadyState: []Metric{{
			Name:      "readable",
			Query:     func(context.Context) (float64, error) { return 0, nil },
			Threshold: Threshold{Operator: "==", Value: 1},
		}},
		Method: []Action{{Execute: func(context.Context) error { executed = true; return nil }}},
	})
	assert.ErrorIs(t, err, ErrSteadyState)
	assert.False(t, result.SteadyStateValid)
	assert.Len(t, result.Violations, 1)
	assert.False(t, executed)
}

func TestObservationWindow(t *testing.T) {
	engine := NewEngine(io.Discard, 0)
	samples := 0
	result, err := engine.RunExperiment(context.Background(), Experiment{
		Name: "sampled",
		Observe: []Metric{{
			Name:  "count",
			Query: func(context.Context) (float64, error) { samples++; return float64(samples), nil },
		}},
		Duration:       50 * time.Millisecond,
		SampleInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(result.Observations["count"]), 2)
}

func TestEvaluateThreshold(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true},
		{"<", 2, false},
		{">=", 1, true},
		{"<=", 1, true},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evaluateThreshold(tt.value, Threshold{Operator: tt.op, Value: 1}), tt.op)
	}
}
