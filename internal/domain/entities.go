// Package domain holds the submission lifecycle model, the canonical error
// taxonomy, and the ports the pipeline core depends on.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Error taxonomy (sentinels). Invariant and validation faults propagate to
// the caller; processing failures travel as ProcessResult values instead.
var (
	ErrInvariant  = errors.New("invariant violation")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrLeaseLost  = errors.New("lease lost")
	ErrInternal   = errors.New("internal error")
)

// SourceType enumerates ingress paths.
const (
	SourceTypeAPIUpload       = "api_upload"
	SourceTypeTelegramWebhook = "telegram_webhook"
)

// StoragePrefixes are the only key prefixes the object store accepts.
var StoragePrefixes = []string{"raw/", "normalized/", "exports/", "eval/"}

// ValidStorageKey reports whether key starts with an allowed stage prefix.
func ValidStorageKey(key string) bool {
	for _, prefix := range StoragePrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// CandidateSnapshot is the externally visible candidate record.
type CandidateSnapshot struct {
	CandidatePublicID string
	FirstName         string
	LastName          string
}

// AssignmentSnapshot is the externally visible assignment record.
type AssignmentSnapshot struct {
	AssignmentPublicID string
	Title              string
	Description        string
	IsActive           bool
}

// SubmissionSnapshot is the full submission row as seen by callers.
type SubmissionSnapshot struct {
	SubmissionID          string
	CandidatePublicID     string
	AssignmentPublicID    string
	Status                State
	AttemptTelegramIngest int
	AttemptNormalization  int
	AttemptEvaluation     int
	AttemptDelivery       int
	ClaimedBy             *string
	ClaimedAt             *time.Time
	LeaseExpiresAt        *time.Time
	LastErrorCode         *string
	LastErrorMessage      *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// AttemptForStage returns the attempt counter charged by the given stage.
func (s SubmissionSnapshot) AttemptForStage(stage Stage) int {
	switch stage {
	case StageRaw:
		return s.AttemptTelegramIngest
	case StageNormalized:
		return s.AttemptNormalization
	case StageLLMOutput:
		return s.AttemptEvaluation
	case StageExports:
		return s.AttemptDelivery
	}
	return 0
}

// SubmissionSourceSnapshot carries the idempotency key and ingress metadata.
type SubmissionSourceSnapshot struct {
	SubmissionID     string
	SourceType       string
	SourceExternalID string
	Metadata         map[string]any
}

// UpsertSourceResult reports the outcome of the idempotent source upsert.
type UpsertSourceResult struct {
	SubmissionID string
	Status       State
	Created      bool
}

// WorkItemClaim is the exclusive right to process one submission through one
// stage, bounded by a lease.
type WorkItemClaim struct {
	SubmissionID   string
	Stage          State // the stage's in-progress state
	Attempt        int
	LeaseExpiresAt time.Time
}

// ProcessResult is the tagged outcome of a stage process function. Retry
// routing is data: the worker loop resolves ErrorCode through the taxonomy.
type ProcessResult struct {
	Success         bool
	Detail          string
	ArtifactRef     string
	ArtifactVersion string
	ErrorCode       ErrorCode
}

// FieldGroup selects projection groups for the submission list.
type FieldGroup string

// Projection field groups.
const (
	FieldGroupCore       FieldGroup = "core"
	FieldGroupCandidate  FieldGroup = "candidate"
	FieldGroupAssignment FieldGroup = "assignment"
	FieldGroupSource     FieldGroup = "source"
	FieldGroupEvaluation FieldGroup = "evaluation"
	FieldGroupOps        FieldGroup = "ops"
)

// SortBy enumerates list sort columns.
type SortBy string

// Sort columns.
const (
	SortByCreatedAt SortBy = "created_at"
	SortByUpdatedAt SortBy = "updated_at"
	SortByScore     SortBy = "score_1_10"
	SortByStatus    SortBy = "status"
)

// SortOrder enumerates sort directions.
type SortOrder string

// Sort directions.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// List limit bounds.
const (
	ListLimitMin = 1
	ListLimitMax = 1000
)

// SubmissionListQuery selects and projects submissions. Include always
// implies the core group. Sorting is stable: the internal monotonic id is the
// final ascending tie-breaker, and score sorts rank null scores as zero.
type SubmissionListQuery struct {
	Statuses           []State
	SubmissionIDs      []string
	CandidatePublicID  string
	AssignmentPublicID string
	SourceType         string
	HasError           *bool
	CreatedFrom        *time.Time
	CreatedTo          *time.Time
	Include            []FieldGroup
	SortBy             SortBy
	SortOrder          SortOrder
	Limit              int
	Offset             int
}

// Includes reports whether the query selects the given field group.
func (q SubmissionListQuery) Includes(group FieldGroup) bool {
	if group == FieldGroupCore {
		return true
	}
	for _, g := range q.Include {
		if g == group {
			return true
		}
	}
	return false
}

// Normalize applies defaults and clamps paging bounds.
func (q SubmissionListQuery) Normalize() SubmissionListQuery {
	if q.SortBy == "" {
		q.SortBy = SortByCreatedAt
	}
	if q.SortOrder == "" {
		q.SortOrder = SortAsc
	}
	if q.Limit < ListLimitMin {
		q.Limit = 100
	}
	if q.Limit > ListLimitMax {
		q.Limit = ListLimitMax
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// SubmissionListItem is one projected row. Optional groups are nil when not
// requested or not present.
type SubmissionListItem struct {
	ID         int64
	Core       SubmissionListCore
	Candidate  *SubmissionListCandidate
	Assignment *SubmissionListAssignment
	Source     *SubmissionListSource
	Evaluation *SubmissionListEvaluation
	Ops        *SubmissionListOps
}

// SubmissionListCore is always projected.
type SubmissionListCore struct {
	PublicID  string
	Status    State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubmissionListCandidate projects the owning candidate.
type SubmissionListCandidate struct {
	PublicID string
}

// SubmissionListAssignment projects the owning assignment.
type SubmissionListAssignment struct {
	PublicID string
}

// SubmissionListSource projects the ingress source pair.
type SubmissionListSource struct {
	Type       string
	ExternalID string
}

// SubmissionListEvaluation projects the most recent evaluation joined with
// the most recent model run's chain metadata.
type SubmissionListEvaluation struct {
	Score1To10        *int
	CriteriaScores    map[string]any
	OrganizerFeedback map[string]any
	CandidateFeedback map[string]any
	ChainVersion      *string
	Model             *string
	SpecVersion       *string
	ResponseLanguage  *string
}

// SubmissionListOps projects operational error fields.
type SubmissionListOps struct {
	LastErrorCode    *string
	LastErrorMessage *string
}

// EvaluationRecord is the persisted evaluation payload. The reproducibility
// subset is co-located with the criteria payload so export reads need no
// joins.
type EvaluationRecord struct {
	SubmissionID          string
	Score1To10            int
	CriteriaScores        map[string]any
	OrganizerFeedback     map[string]any
	CandidateFeedback     map[string]any
	AILikelihood          float64
	AIConfidence          float64
	ReproducibilitySubset map[string]string
}

// LLMRunRecord is the authoritative, append-only model run metadata.
type LLMRunRecord struct {
	SubmissionID     string
	Provider         string
	Model            string
	APIBase          string
	ChainVersion     string
	SpecVersion      string
	ResponseLanguage string
	Temperature      float64
	Seed             *int
	TokensInput      int
	TokensOutput     int
	LatencyMS        int
}

// DeliveryRecord is an append-only delivery attempt record.
type DeliveryRecord struct {
	SubmissionID      string
	Channel           string
	Status            string
	ExternalMessageID *string
	Attempts          int
	LastErrorCode     *string
}

// CreateSubmissionParams feeds the idempotent source upsert.
type CreateSubmissionParams struct {
	CandidatePublicID  string
	AssignmentPublicID string
	SourceType         string
	SourceExternalID   string
	InitialStatus      State
	Metadata           map[string]any
	SourcePayloadRef   *string
}

// WorkRepository is the persistence boundary for the claim/process/finalize
// flow. Claim semantics must stay compatible with row claims using
// SELECT ... FOR UPDATE SKIP LOCKED: concurrent claimants observe disjoint
// winners or nil.
type WorkRepository interface {
	CreateCandidate(ctx context.Context, firstName, lastName string) (CandidateSnapshot, error)
	GetOrCreateCandidateBySource(ctx context.Context, sourceType, sourceExternalID, firstName, lastName string, metadata map[string]any) (CandidateSnapshot, error)
	CreateAssignment(ctx context.Context, title, description string, isActive bool) (AssignmentSnapshot, error)
	ListAssignments(ctx context.Context, activeOnly bool) ([]AssignmentSnapshot, error)

	CreateSubmissionWithSource(ctx context.Context, params CreateSubmissionParams) (UpsertSourceResult, error)
	FindSubmissionSource(ctx context.Context, sourceType, sourceExternalID string) (*SubmissionSourceSnapshot, error)
	GetSubmission(ctx context.Context, submissionID string) (*SubmissionSnapshot, error)
	ListSubmissions(ctx context.Context, query SubmissionListQuery) ([]SubmissionListItem, error)

	ClaimNext(ctx context.Context, stage Stage, workerID string, leaseSeconds int) (*WorkItemClaim, error)
	HeartbeatClaim(ctx context.Context, submissionID string, stage Stage, workerID string, leaseSeconds int) (bool, error)
	ReclaimExpiredClaims(ctx context.Context, stage Stage) (int, error)
	TransitionState(ctx context.Context, submissionID string, from, to State) error
	Finalize(ctx context.Context, submissionID string, stage Stage, workerID string, success bool, detail string, errorCode ErrorCode) error

	LinkArtifact(ctx context.Context, submissionID string, stage Stage, artifactRef, artifactVersion string) error
	GetArtifactRef(ctx context.Context, submissionID string, stage Stage) (string, error)

	PersistEvaluation(ctx context.Context, rec EvaluationRecord) error
	PersistLLMRun(ctx context.Context, rec LLMRunRecord) error
	PersistDelivery(ctx context.Context, rec DeliveryRecord) error
}

// StorageClient is the object storage port. Keys must begin with one of the
// allowed stage prefixes; the returned ref is opaque and only needs to
// round-trip through GetBytes.
type StorageClient interface {
	PutBytes(ctx context.Context, key string, payload []byte) (string, error)
	GetBytes(ctx context.Context, key string) ([]byte, error)
}

// TelegramClient is the webhook source and notification transport port.
// SendResultNotification must be idempotent on submissionID.
type TelegramClient interface {
	GetFileBytes(ctx context.Context, fileID string) ([]byte, error)
	SendResultNotification(ctx context.Context, submissionID, message string) (string, error)
}

// LLMClientRequest carries a rendered prompt pair to the model transport.
type LLMClientRequest struct {
	SystemPrompt     string
	UserPrompt       string
	Model            string
	Temperature      float64
	Seed             *int
	ResponseLanguage string
}

// LLMClientResult carries the raw model reply and run accounting.
type LLMClientResult struct {
	RawText      string
	RawJSON      map[string]any
	TokensInput  int
	TokensOutput int
	LatencyMS    int
}

// LLMClient is the model transport port, consumed by the evaluate-stage
// process function only.
type LLMClient interface {
	Evaluate(ctx context.Context, req LLMClientRequest) (LLMClientResult, error)
}
