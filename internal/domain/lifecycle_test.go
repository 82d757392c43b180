package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageLifecycleTuples(t *testing.T) {
	tests := []struct {
		stage      Stage
		source     State
		inProgress State
		success    State
		failed     State
		attempt    string
	}{
		{StageRaw, StateTelegramUpdateReceived, StateTelegramIngestInProgress, StateUploaded, StateFailedTelegramIngest, "attempt_telegram_ingest"},
		{StageNormalized, StateUploaded, StateNormalizationInProgress, StateNormalized, StateFailedNormalization, "attempt_normalization"},
		{StageLLMOutput, StateNormalized, StateEvaluationInProgress, StateEvaluated, StateFailedEvaluation, "attempt_evaluation"},
		{StageExports, StateEvaluated, StateDeliveryInProgress, StateDelivered, StateFailedDelivery, "attempt_delivery"},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			lc, ok := LifecycleForStage(tt.stage)
			require.True(t, ok)
			assert.Equal(t, tt.source, lc.SourceState)
			assert.Equal(t, tt.inProgress, lc.InProgressState)
			assert.Equal(t, tt.success, lc.SuccessState)
			assert.Equal(t, tt.failed, lc.FailedState)
			assert.Equal(t, tt.attempt, lc.AttemptField)
			assert.Equal(t, DefaultMaxAttempts, lc.MaxAttempts)
		})
	}
}

func TestTransitionAllowed(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"claim raw", StateTelegramUpdateReceived, StateTelegramIngestInProgress, true},
		{"raw success", StateTelegramIngestInProgress, StateUploaded, true},
		{"raw retry", StateTelegramIngestInProgress, StateTelegramUpdateReceived, true},
		{"raw terminal", StateTelegramIngestInProgress, StateFailedTelegramIngest, true},
		{"raw dead letter", StateTelegramIngestInProgress, StateDeadLetter, true},
		{"claim normalize", StateUploaded, StateNormalizationInProgress, true},
		{"skip stage", StateUploaded, StateEvaluationInProgress, false},
		{"backwards", StateNormalized, StateUploaded, false},
		{"idempotent", StateNormalized, StateNormalized, true},
		{"dead letter terminal", StateDeadLetter, StateUploaded, false},
		{"delivered dead end", StateDelivered, StateDeliveryInProgress, false},
		{"failed state dead end", StateFailedNormalization, StateUploaded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TransitionAllowed(tt.from, tt.to))
		})
	}
}

// Every edge in the graph must point at an enumerated state, and every stage
// tuple must be consistent with the graph.
func TestTransitionGraphClosedOverStates(t *testing.T) {
	for from, targets := range allowedTransitions {
		require.True(t, IsValidState(from), "from state %q", from)
		for _, to := range targets {
			require.True(t, IsValidState(to), "to state %q", to)
		}
	}
	for _, lc := range StageLifecycles {
		assert.True(t, TransitionAllowed(lc.SourceState, lc.InProgressState))
		assert.True(t, TransitionAllowed(lc.InProgressState, lc.SuccessState))
		assert.True(t, TransitionAllowed(lc.InProgressState, lc.SourceState))
		assert.True(t, TransitionAllowed(lc.InProgressState, lc.FailedState))
		assert.True(t, TransitionAllowed(lc.InProgressState, StateDeadLetter))
	}
}

func TestAllStatesEnumerated(t *testing.T) {
	states := AllStates()
	assert.Len(t, states, 14)
	for _, s := range states {
		assert.True(t, IsValidState(s), "state %q", s)
	}
	assert.False(t, IsValidState(State("queued")))
}
