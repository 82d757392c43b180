package domain

// State enumerates the submission lifecycle states.
type State string

// Lifecycle states (terminal and non-terminal).
const (
	StateTelegramUpdateReceived   State = "telegram_update_received"
	StateTelegramIngestInProgress State = "telegram_ingest_in_progress"
	StateUploaded                 State = "uploaded"
	StateNormalizationInProgress  State = "normalization_in_progress"
	StateNormalized               State = "normalized"
	StateEvaluationInProgress     State = "evaluation_in_progress"
	StateEvaluated                State = "evaluated"
	StateDeliveryInProgress       State = "delivery_in_progress"
	StateDelivered                State = "delivered"
	StateFailedTelegramIngest     State = "failed_telegram_ingest"
	StateFailedNormalization      State = "failed_normalization"
	StateFailedEvaluation         State = "failed_evaluation"
	StateFailedDelivery           State = "failed_delivery"
	StateDeadLetter               State = "dead_letter"
)

// Stage identifies a pipeline phase with a dedicated worker role.
type Stage string

// Pipeline stages in processing order.
const (
	StageRaw        Stage = "raw"
	StageNormalized Stage = "normalized"
	StageLLMOutput  Stage = "llm-output"
	StageExports    Stage = "exports"
)

// DefaultMaxAttempts bounds the per-stage retry budget.
const DefaultMaxAttempts = 3

// StageLifecycle describes the state tuple a stage drives a submission
// through, plus which attempt counter it charges.
type StageLifecycle struct {
	Stage           Stage
	SourceState     State
	InProgressState State
	SuccessState    State
	FailedState     State
	AttemptField    string
	MaxAttempts     int
}

// StageLifecycles maps each stage to its lifecycle tuple.
var StageLifecycles = map[Stage]StageLifecycle{
	StageRaw: {
		Stage:           StageRaw,
		SourceState:     StateTelegramUpdateReceived,
		InProgressState: StateTelegramIngestInProgress,
		SuccessState:    StateUploaded,
		FailedState:     StateFailedTelegramIngest,
		AttemptField:    "attempt_telegram_ingest",
		MaxAttempts:     DefaultMaxAttempts,
	},
	StageNormalized: {
		Stage:           StageNormalized,
		SourceState:     StateUploaded,
		InProgressState: StateNormalizationInProgress,
		SuccessState:    StateNormalized,
		FailedState:     StateFailedNormalization,
		AttemptField:    "attempt_normalization",
		MaxAttempts:     DefaultMaxAttempts,
	},
	StageLLMOutput: {
		Stage:           StageLLMOutput,
		SourceState:     StateNormalized,
		InProgressState: StateEvaluationInProgress,
		SuccessState:    StateEvaluated,
		FailedState:     StateFailedEvaluation,
		AttemptField:    "attempt_evaluation",
		MaxAttempts:     DefaultMaxAttempts,
	},
	StageExports: {
		Stage:           StageExports,
		SourceState:     StateEvaluated,
		InProgressState: StateDeliveryInProgress,
		SuccessState:    StateDelivered,
		FailedState:     StateFailedDelivery,
		AttemptField:    "attempt_delivery",
		MaxAttempts:     DefaultMaxAttempts,
	},
}

// LifecycleForStage returns the lifecycle tuple for a stage.
func LifecycleForStage(stage Stage) (StageLifecycle, bool) {
	lc, ok := StageLifecycles[stage]
	return lc, ok
}

// allowedTransitions is the closed transition graph. Each source state admits
// only its claim edge; each in-progress state admits success, retry (back to
// source), terminal failure, and dead-letter edges. dead_letter admits nothing.
var allowedTransitions = map[State][]State{
	StateTelegramUpdateReceived:   {StateTelegramIngestInProgress},
	StateTelegramIngestInProgress: {StateUploaded, StateTelegramUpdateReceived, StateFailedTelegramIngest, StateDeadLetter},
	StateUploaded:                 {StateNormalizationInProgress},
	StateNormalizationInProgress:  {StateNormalized, StateUploaded, StateFailedNormalization, StateDeadLetter},
	StateNormalized:               {StateEvaluationInProgress},
	StateEvaluationInProgress:     {StateEvaluated, StateNormalized, StateFailedEvaluation, StateDeadLetter},
	StateEvaluated:                {StateDeliveryInProgress},
	StateDeliveryInProgress:       {StateDelivered, StateEvaluated, StateFailedDelivery, StateDeadLetter},
	StateDeadLetter:               {},
}

// IsValidState reports whether s is one of the enumerated lifecycle states.
func IsValidState(s State) bool {
	if _, ok := allowedTransitions[s]; ok {
		return true
	}
	switch s {
	case StateFailedTelegramIngest, StateFailedNormalization, StateFailedEvaluation, StateFailedDelivery:
		return true
	}
	return false
}

// TransitionAllowed reports whether from -> to is a legal edge. A transition
// to the current state is always allowed (idempotent no-op).
func TransitionAllowed(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStates lists every lifecycle state; used by the relational schema
// constraint and by tests walking the transition graph.
func AllStates() []State {
	return []State{
		StateTelegramUpdateReceived,
		StateTelegramIngestInProgress,
		StateUploaded,
		StateNormalizationInProgress,
		StateNormalized,
		StateEvaluationInProgress,
		StateEvaluated,
		StateDeliveryInProgress,
		StateDelivered,
		StateFailedTelegramIngest,
		StateFailedNormalization,
		StateFailedEvaluation,
		StateFailedDelivery,
		StateDeadLetter,
	}
}
