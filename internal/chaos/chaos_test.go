package chaos

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/clients"
	"librarian/internal/server"
	"librarian/internal/server/servertest"
)

func TestGameDayAgainstAPI(t *testing.T) {
	srv := servertest.New(t, server.Options{})
	client := clients.NewClient(srv.URL)
	require.NoError(t, client.Login(context.Background(), servertest.Username, servertest.Password))

	var out bytes.Buffer
	engine := NewEngine(&out)
	engine.RegisterExperiments(client, 12)

	held, err := engine.ExecuteGameDay(context.Background(), GameDay{
		Name:      "test",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	})
	require.NoError(t, err)
	assert.True(t, held, out.String())

	results := engine.Results()
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.SteadyStateValid)
		assert.Empty(t, r.Violations, r.ExperimentName)
		assert.Empty(t, r.Failures, r.ExperimentName)
	}
	assert.Contains(t, out.String(), "concurrent-issue-last-copy")
}

func TestSteadyStateViolationAborts(t *testing.T) {
	engine := NewEngine(&bytes.Buffer{})
	ran := false
	exp := Experiment{
		Name: "broken",
		SteadyState: []Metric{{
			Name:      "inconsistencies",
			Query:     func(context.Context) (float64, error) { return 2, nil },
			Threshold: Threshold{Operator: "==", Value: 0},
		}},
		Method: []Action{{Execute: func(context.Context) error { ran = true; return nil }}},
	}

	result, err := engine.RunExperiment(context.Background(), exp)
	assert.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, ran)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, 2.0, result.Violations[0].Actual)
}

func TestFailedAssertionAndActionError(t *testing.T) {
	engine := NewEngine(&bytes.Buffer{})
	exp := Experiment{
		Name:    "failing",
		Method:  []Action{{Target: "api", Execute: func(context.Context) error { return errors.New("boom") }}},
		Observe: []Metric{{Name: "value", Query: func(context.Context) (float64, error) { return 3, nil }}},
		Validation: []Assertion{
			{Metric: "value", Condition: func(v float64) bool { return v == 1 }, Message: "value must be 1"},
			{Metric: "missing", Condition: func(float64) bool { return true }, Message: "missing metric"},
		},
	}

	result, err := engine.RunExperiment(context.Background(), exp)
	require.NoError(t, err)
	assert.False(t, result.HypothesisHeld)
	assert.Len(t, result.Failures, 2)
	require.Len(t, result.ErrorEvents, 1)
	assert.Equal(t, "api", result.ErrorEvents[0].Component)
}

func TestEvaluateThreshold(t *testing.T) {
	tests := []struct {
		op   string
		v    float64
		want bool
	}{
		{">", 2, true},
		{"<", 2, false},
		{">=", 1, true},
		{"<=", 1, true},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evaluateThreshold(tt.v, Threshold{Operator: tt.op, Value: 1}), tt.op)
	}
}
