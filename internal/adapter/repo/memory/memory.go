// Package memory implements the work repository on plain maps behind a
// single mutex. It is the reference implementation: the claim, heartbeat,
// reclaim, and finalize contracts here match the relational implementation
// row for row, and the property tests run against it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/artifact"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

type submissionRow struct {
	id                 int64
	publicID           string
	candidatePublicID  string
	assignmentPublicID string
	status             domain.State
	attempts           map[domain.Stage]int
	claimedBy          *string
	claimedAt          *time.Time
	leaseExpiresAt     *time.Time
	lastErrorCode      *string
	lastErrorMessage   *string
	createdAt          time.Time
	updatedAt          time.Time
}

type sourceRow struct {
	submissionID string
	sourceType   string
	externalID   string
	payloadRef   *string
	metadata     map[string]any
}

type artifactRow struct {
	ref     string
	version string
}

type evaluationRow struct {
	rec       domain.EvaluationRecord
	updatedAt time.Time
}

type llmRunRow struct {
	rec       domain.LLMRunRecord
	createdAt time.Time
}

// Repository is an in-memory domain.WorkRepository. All operations take the
// single monitor, which gives the same winners-are-disjoint claim behavior
// as row locks in the relational implementation.
type Repository struct {
	mu sync.Mutex

	nowFn func() time.Time

	nextSubmissionID int64

	candidates       map[string]domain.CandidateSnapshot // by public id
	candidateSources map[string]string                   // source pair -> candidate public id
	assignments      []domain.AssignmentSnapshot
	assignmentSet    map[string]struct{}

	submissions map[string]*submissionRow // by public id
	sources     map[string]*sourceRow     // source pair -> row
	artifacts   map[string]artifactRow    // submission id + stage -> ref
	evaluations map[string]*evaluationRow // latest per submission
	llmRuns     map[string][]llmRunRow
	deliveries  map[string][]domain.DeliveryRecord
}

// New returns an empty repository using the wall clock.
func New() *Repository {
	return &Repository{
		nowFn:            time.Now,
		candidates:       make(map[string]domain.CandidateSnapshot),
		candidateSources: make(map[string]string),
		assignmentSet:    make(map[string]struct{}),
		submissions:      make(map[string]*submissionRow),
		sources:          make(map[string]*sourceRow),
		artifacts:        make(map[string]artifactRow),
		evaluations:      make(map[string]*evaluationRow),
		llmRuns:          make(map[string][]llmRunRow),
		deliveries:       make(map[string][]domain.DeliveryRecord),
	}
}

// SetNowFunc replaces the clock; tests use it to expire leases without
// sleeping.
func (r *Repository) SetNowFunc(fn func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFn = fn
}

func sourceKey(sourceType, externalID string) string {
	return sourceType + "\x00" + externalID
}

func artifactKey(submissionID string, stage domain.Stage) string {
	return submissionID + "\x00" + string(stage)
}

// CreateCandidate allocates a candidate with a fresh public id.
func (r *Repository) CreateCandidate(_ context.Context, firstName, lastName string) (domain.CandidateSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createCandidateLocked(firstName, lastName)
}

func (r *Repository) createCandidateLocked(firstName, lastName string) (domain.CandidateSnapshot, error) {
	for i := 0; i < 5; i++ {
		id := domain.NewCandidatePublicID()
		if _, exists := r.candidates[id]; exists {
			continue
		}
		snap := domain.CandidateSnapshot{CandidatePublicID: id, FirstName: firstName, LastName: lastName}
		r.candidates[id] = snap
		return snap, nil
	}
	return domain.CandidateSnapshot{}, fmt.Errorf("op=memory.CreateCandidate: failed to allocate unique public id: %w", domain.ErrInvariant)
}

// GetOrCreateCandidateBySource upserts a candidate keyed on the source pair.
func (r *Repository) GetOrCreateCandidateBySource(_ context.Context, sourceType, sourceExternalID, firstName, lastName string, _ map[string]any) (domain.CandidateSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sourceKey(sourceType, sourceExternalID)
	if id, ok := r.candidateSources[key]; ok {
		return r.candidates[id], nil
	}
	snap, err := r.createCandidateLocked(firstName, lastName)
	if err != nil {
		return domain.CandidateSnapshot{}, err
	}
	r.candidateSources[key] = snap.CandidatePublicID
	return snap, nil
}

// CreateAssignment allocates an assignment with a fresh public id.
func (r *Repository) CreateAssignment(_ context.Context, title, description string, isActive bool) (domain.AssignmentSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < 5; i++ {
		id := domain.NewAssignmentPublicID()
		if _, exists := r.assignmentSet[id]; exists {
			continue
		}
		snap := domain.AssignmentSnapshot{AssignmentPublicID: id, Title: title, Description: description, IsActive: isActive}
		r.assignments = append(r.assignments, snap)
		r.assignmentSet[id] = struct{}{}
		return snap, nil
	}
	return domain.AssignmentSnapshot{}, fmt.Errorf("op=memory.CreateAssignment: failed to allocate unique public id: %w", domain.ErrInvariant)
}

// ListAssignments returns assignments in creation order.
func (r *Repository) ListAssignments(_ context.Context, activeOnly bool) ([]domain.AssignmentSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AssignmentSnapshot, 0, len(r.assignments))
	for _, a := range r.assignments {
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateSubmissionWithSource atomically inserts a submission and its source,
// or returns the existing row keyed on the source pair.
func (r *Repository) CreateSubmissionWithSource(_ context.Context, params domain.CreateSubmissionParams) (domain.UpsertSourceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !domain.IsValidState(params.InitialStatus) {
		return domain.UpsertSourceResult{}, fmt.Errorf("op=memory.CreateSubmissionWithSource: invalid initial status %q: %w", params.InitialStatus, domain.ErrValidation)
	}

	key := sourceKey(params.SourceType, params.SourceExternalID)
	if src, ok := r.sources[key]; ok {
		row, ok := r.submissions[src.submissionID]
		if !ok {
			return domain.UpsertSourceResult{}, fmt.Errorf("op=memory.CreateSubmissionWithSource: source references missing submission: %w", domain.ErrInvariant)
		}
		return domain.UpsertSourceResult{SubmissionID: row.publicID, Status: row.status, Created: false}, nil
	}

	if _, ok := r.candidates[params.CandidatePublicID]; !ok {
		return domain.UpsertSourceResult{}, fmt.Errorf("op=memory.CreateSubmissionWithSource: candidate %q is not found: %w", params.CandidatePublicID, domain.ErrInvariant)
	}
	if _, ok := r.assignmentSet[params.AssignmentPublicID]; !ok {
		return domain.UpsertSourceResult{}, fmt.Errorf("op=memory.CreateSubmissionWithSource: assignment %q is not found: %w", params.AssignmentPublicID, domain.ErrInvariant)
	}

	now := r.nowFn().UTC()
	r.nextSubmissionID++
	row := &submissionRow{
		id:                 r.nextSubmissionID,
		publicID:           domain.NewSubmissionPublicID(),
		candidatePublicID:  params.CandidatePublicID,
		assignmentPublicID: params.AssignmentPublicID,
		status:             params.InitialStatus,
		attempts:           make(map[domain.Stage]int),
		createdAt:          now,
		updatedAt:          now,
	}
	r.submissions[row.publicID] = row

	metadata := make(map[string]any, len(params.Metadata))
	for k, v := range params.Metadata {
		metadata[k] = v
	}
	r.sources[key] = &sourceRow{
		submissionID: row.publicID,
		sourceType:   params.SourceType,
		externalID:   params.SourceExternalID,
		payloadRef:   params.SourcePayloadRef,
		metadata:     metadata,
	}
	return domain.UpsertSourceResult{SubmissionID: row.publicID, Status: row.status, Created: true}, nil
}

// FindSubmissionSource returns the source row for a source pair, or nil.
func (r *Repository) FindSubmissionSource(_ context.Context, sourceType, sourceExternalID string) (*domain.SubmissionSourceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[sourceKey(sourceType, sourceExternalID)]
	if !ok {
		return nil, nil
	}
	metadata := make(map[string]any, len(src.metadata))
	for k, v := range src.metadata {
		metadata[k] = v
	}
	return &domain.SubmissionSourceSnapshot{
		SubmissionID:     src.submissionID,
		SourceType:       src.sourceType,
		SourceExternalID: src.externalID,
		Metadata:         metadata,
	}, nil
}

// GetSubmission returns the submission snapshot, or nil when absent.
func (r *Repository) GetSubmission(_ context.Context, submissionID string) (*domain.SubmissionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.submissions[submissionID]
	if !ok {
		return nil, nil
	}
	snap := r.snapshotLocked(row)
	return &snap, nil
}

func (r *Repository) snapshotLocked(row *submissionRow) domain.SubmissionSnapshot {
	return domain.SubmissionSnapshot{
		SubmissionID:          row.publicID,
		CandidatePublicID:     row.candidatePublicID,
		AssignmentPublicID:    row.assignmentPublicID,
		Status:                row.status,
		AttemptTelegramIngest: row.attempts[domain.StageRaw],
		AttemptNormalization:  row.attempts[domain.StageNormalized],
		AttemptEvaluation:     row.attempts[domain.StageLLMOutput],
		AttemptDelivery:       row.attempts[domain.StageExports],
		ClaimedBy:             copyStr(row.claimedBy),
		ClaimedAt:             copyTime(row.claimedAt),
		LeaseExpiresAt:        copyTime(row.leaseExpiresAt),
		LastErrorCode:         copyStr(row.lastErrorCode),
		LastErrorMessage:      copyStr(row.lastErrorMessage),
		CreatedAt:             row.createdAt,
		UpdatedAt:             row.updatedAt,
	}
}

// ClaimNext claims the oldest submission in the stage's source state: moves
// it to in-progress, stamps ownership and lease, and charges one attempt.
func (r *Repository) ClaimNext(_ context.Context, stage domain.Stage, workerID string, leaseSeconds int) (*domain.WorkItemClaim, error) {
	lc, ok := domain.LifecycleForStage(stage)
	if !ok {
		return nil, fmt.Errorf("op=memory.ClaimNext: unknown stage %q: %w", stage, domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.oldestInStateLocked(lc.SourceState)
	if row == nil {
		return nil, nil
	}
	now := r.nowFn().UTC()
	lease := now.Add(time.Duration(leaseSeconds) * time.Second)
	row.status = lc.InProgressState
	row.claimedBy = &workerID
	row.claimedAt = &now
	row.leaseExpiresAt = &lease
	row.attempts[stage]++
	row.updatedAt = now
	return &domain.WorkItemClaim{
		SubmissionID:   row.publicID,
		Stage:          lc.InProgressState,
		Attempt:        row.attempts[stage],
		LeaseExpiresAt: lease,
	}, nil
}

func (r *Repository) oldestInStateLocked(state domain.State) *submissionRow {
	var oldest *submissionRow
	for _, row := range r.submissions {
		if row.status != state {
			continue
		}
		if oldest == nil || row.id < oldest.id {
			oldest = row
		}
	}
	return oldest
}

// HeartbeatClaim extends a live, owned lease. It never revives an expired
// claim.
func (r *Repository) HeartbeatClaim(_ context.Context, submissionID string, stage domain.Stage, workerID string, leaseSeconds int) (bool, error) {
	lc, ok := domain.LifecycleForStage(stage)
	if !ok {
		return false, fmt.Errorf("op=memory.HeartbeatClaim: unknown stage %q: %w", stage, domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.submissions[submissionID]
	if !ok {
		return false, nil
	}
	now := r.nowFn().UTC()
	if row.status != lc.InProgressState || row.claimedBy == nil || *row.claimedBy != workerID {
		return false, nil
	}
	if row.leaseExpiresAt == nil || !row.leaseExpiresAt.After(now) {
		return false, nil
	}
	lease := now.Add(time.Duration(leaseSeconds) * time.Second)
	row.leaseExpiresAt = &lease
	row.updatedAt = now
	return true, nil
}

// ReclaimExpiredClaims routes every expired in-progress claim for the stage
// back to the retry path (or dead_letter at quota) and reports rows touched.
func (r *Repository) ReclaimExpiredClaims(_ context.Context, stage domain.Stage) (int, error) {
	lc, ok := domain.LifecycleForStage(stage)
	if !ok {
		return 0, fmt.Errorf("op=memory.ReclaimExpiredClaims: unknown stage %q: %w", stage, domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn().UTC()
	count := 0
	for _, row := range r.submissions {
		if row.status != lc.InProgressState {
			continue
		}
		if row.leaseExpiresAt != nil && row.leaseExpiresAt.After(now) {
			continue
		}
		next := row.attempts[stage] + 1
		if next < lc.MaxAttempts {
			row.attempts[stage] = next
			row.status = lc.SourceState
			r.setErrorLocked(row, domain.ErrorCodeLeaseExpired, "claim lease expired and was reclaimed")
		} else {
			if next > lc.MaxAttempts {
				next = lc.MaxAttempts
			}
			row.attempts[stage] = next
			row.status = domain.StateDeadLetter
			r.setErrorLocked(row, domain.ErrorCodeLeaseExpired, "claim lease expired and reached max attempts")
		}
		r.clearOwnershipLocked(row)
		row.updatedAt = now
		count++
	}
	return count, nil
}

// TransitionState applies a guarded transition. from == to is an idempotent
// no-op; anything off the allowed-transitions graph is an invariant fault.
func (r *Repository) TransitionState(_ context.Context, submissionID string, from, to domain.State) error {
	if from == to {
		return nil
	}
	if !domain.TransitionAllowed(from, to) {
		return fmt.Errorf("op=memory.TransitionState: invalid transition %s -> %s: %w", from, to, domain.ErrInvariant)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.submissions[submissionID]
	if !ok || row.status != from {
		return fmt.Errorf("op=memory.TransitionState: transition rejected for %s: %w", submissionID, domain.ErrInvariant)
	}
	row.status = to
	row.updatedAt = r.nowFn().UTC()
	return nil
}

// Finalize completes a claim under the ownership guard: the row must still
// be in-progress, owned by workerID, with a live lease. Failure outcomes are
// routed through the error taxonomy.
func (r *Repository) Finalize(_ context.Context, submissionID string, stage domain.Stage, workerID string, success bool, detail string, errorCode domain.ErrorCode) error {
	lc, ok := domain.LifecycleForStage(stage)
	if !ok {
		return fmt.Errorf("op=memory.Finalize: unknown stage %q: %w", stage, domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.submissions[submissionID]
	now := r.nowFn().UTC()
	guardHolds := ok &&
		row.status == lc.InProgressState &&
		row.claimedBy != nil && *row.claimedBy == workerID &&
		row.leaseExpiresAt != nil && row.leaseExpiresAt.After(now)
	if !guardHolds {
		return fmt.Errorf("op=memory.Finalize: rejected by ownership guard for %s: %w", submissionID, domain.ErrInvariant)
	}

	if success {
		row.status = lc.SuccessState
		row.lastErrorCode = nil
		row.lastErrorMessage = nil
		r.clearOwnershipLocked(row)
		row.updatedAt = now
		return nil
	}

	if errorCode == "" {
		errorCode = domain.ErrorCodeInternal
	}
	resolved := domain.ResolveStageError(stage, errorCode)
	if domain.ClassifyError(resolved) == domain.RetryTerminal {
		row.status = lc.FailedState
		r.setErrorLocked(row, resolved, detail)
		r.clearOwnershipLocked(row)
		row.updatedAt = now
		return nil
	}
	if row.attempts[stage] < lc.MaxAttempts {
		row.status = lc.SourceState
	} else {
		row.status = domain.StateDeadLetter
	}
	r.setErrorLocked(row, resolved, detail)
	r.clearOwnershipLocked(row)
	row.updatedAt = now
	return nil
}

func (r *Repository) setErrorLocked(row *submissionRow, code domain.ErrorCode, message string) {
	codeStr := string(code)
	row.lastErrorCode = &codeStr
	row.lastErrorMessage = &message
}

func (r *Repository) clearOwnershipLocked(row *submissionRow) {
	row.claimedBy = nil
	row.claimedAt = nil
	row.leaseExpiresAt = nil
}

// LinkArtifact upserts the artifact link for (submission, stage); the most
// recent write wins.
func (r *Repository) LinkArtifact(_ context.Context, submissionID string, stage domain.Stage, artifactRef, artifactVersion string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[submissionID]; !ok {
		return fmt.Errorf("op=memory.LinkArtifact: submission %q: %w", submissionID, domain.ErrNotFound)
	}
	r.artifacts[artifactKey(submissionID, stage)] = artifactRow{
		ref:     artifact.StorageKeyFromRef(artifactRef),
		version: artifactVersion,
	}
	return nil
}

// GetArtifactRef returns the last linked ref for (submission, stage).
func (r *Repository) GetArtifactRef(_ context.Context, submissionID string, stage domain.Stage) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.artifacts[artifactKey(submissionID, stage)]
	if !ok {
		return "", fmt.Errorf("op=memory.GetArtifactRef: no artifact for submission=%s stage=%s: %w", submissionID, stage, domain.ErrNotFound)
	}
	return row.ref, nil
}

// PersistEvaluation upserts the evaluation for a submission, co-locating the
// reproducibility subset inside the criteria payload.
func (r *Repository) PersistEvaluation(_ context.Context, rec domain.EvaluationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[rec.SubmissionID]; !ok {
		return fmt.Errorf("op=memory.PersistEvaluation: submission %q: %w", rec.SubmissionID, domain.ErrNotFound)
	}
	criteria := make(map[string]any, len(rec.CriteriaScores)+1)
	for k, v := range rec.CriteriaScores {
		criteria[k] = v
	}
	repro := make(map[string]string, len(rec.ReproducibilitySubset))
	for k, v := range rec.ReproducibilitySubset {
		repro[k] = v
	}
	criteria["_reproducibility"] = repro
	stored := rec
	stored.CriteriaScores = criteria
	stored.ReproducibilitySubset = repro
	r.evaluations[rec.SubmissionID] = &evaluationRow{rec: stored, updatedAt: r.nowFn().UTC()}
	return nil
}

// PersistLLMRun appends an authoritative model run record.
func (r *Repository) PersistLLMRun(_ context.Context, rec domain.LLMRunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[rec.SubmissionID]; !ok {
		return fmt.Errorf("op=memory.PersistLLMRun: submission %q: %w", rec.SubmissionID, domain.ErrNotFound)
	}
	r.llmRuns[rec.SubmissionID] = append(r.llmRuns[rec.SubmissionID], llmRunRow{rec: rec, createdAt: r.nowFn().UTC()})
	return nil
}

// PersistDelivery appends a delivery attempt record.
func (r *Repository) PersistDelivery(_ context.Context, rec domain.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[rec.SubmissionID]; !ok {
		return fmt.Errorf("op=memory.PersistDelivery: submission %q: %w", rec.SubmissionID, domain.ErrNotFound)
	}
	r.deliveries[rec.SubmissionID] = append(r.deliveries[rec.SubmissionID], rec)
	return nil
}

// Deliveries returns the delivery records for a submission; test helper.
func (r *Repository) Deliveries(submissionID string) []domain.DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DeliveryRecord, len(r.deliveries[submissionID]))
	copy(out, r.deliveries[submissionID])
	return out
}

// ListSubmissions filters, sorts, projects, and pages submissions.
func (r *Repository) ListSubmissions(_ context.Context, query domain.SubmissionListQuery) ([]domain.SubmissionListItem, error) {
	query = query.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([]*submissionRow, 0, len(r.submissions))
	for _, row := range r.submissions {
		if r.matchesLocked(row, query) {
			rows = append(rows, row)
		}
	}
	r.sortLocked(rows, query)

	if query.Offset >= len(rows) {
		return []domain.SubmissionListItem{}, nil
	}
	rows = rows[query.Offset:]
	if len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	out := make([]domain.SubmissionListItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.projectLocked(row, query))
	}
	return out, nil
}

func (r *Repository) matchesLocked(row *submissionRow, query domain.SubmissionListQuery) bool {
	if len(query.Statuses) > 0 && !containsState(query.Statuses, row.status) {
		return false
	}
	if len(query.SubmissionIDs) > 0 && !containsStr(query.SubmissionIDs, row.publicID) {
		return false
	}
	if query.CandidatePublicID != "" && row.candidatePublicID != query.CandidatePublicID {
		return false
	}
	if query.AssignmentPublicID != "" && row.assignmentPublicID != query.AssignmentPublicID {
		return false
	}
	if query.SourceType != "" {
		src := r.sourceForSubmissionLocked(row.publicID)
		if src == nil || src.sourceType != query.SourceType {
			return false
		}
	}
	if query.HasError != nil {
		hasError := row.lastErrorCode != nil
		if hasError != *query.HasError {
			return false
		}
	}
	if query.CreatedFrom != nil && row.createdAt.Before(*query.CreatedFrom) {
		return false
	}
	if query.CreatedTo != nil && row.createdAt.After(*query.CreatedTo) {
		return false
	}
	return true
}

func (r *Repository) sourceForSubmissionLocked(submissionID string) *sourceRow {
	for _, src := range r.sources {
		if src.submissionID == submissionID {
			return src
		}
	}
	return nil
}

func (r *Repository) sortLocked(rows []*submissionRow, query domain.SubmissionListQuery) {
	desc := query.SortOrder == domain.SortDesc
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		var less, equal bool
		switch query.SortBy {
		case domain.SortByUpdatedAt:
			less, equal = a.updatedAt.Before(b.updatedAt), a.updatedAt.Equal(b.updatedAt)
		case domain.SortByScore:
			sa, sb := r.scoreOrZeroLocked(a.publicID), r.scoreOrZeroLocked(b.publicID)
			less, equal = sa < sb, sa == sb
		case domain.SortByStatus:
			less, equal = a.status < b.status, a.status == b.status
		default:
			less, equal = a.createdAt.Before(b.createdAt), a.createdAt.Equal(b.createdAt)
		}
		if equal {
			// Stable tie-breaker: internal monotonic id ascending, regardless
			// of sort direction.
			return a.id < b.id
		}
		if desc {
			return !less
		}
		return less
	})
}

func (r *Repository) scoreOrZeroLocked(submissionID string) int {
	if ev, ok := r.evaluations[submissionID]; ok {
		return ev.rec.Score1To10
	}
	return 0
}

func (r *Repository) projectLocked(row *submissionRow, query domain.SubmissionListQuery) domain.SubmissionListItem {
	item := domain.SubmissionListItem{
		ID: row.id,
		Core: domain.SubmissionListCore{
			PublicID:  row.publicID,
			Status:    row.status,
			CreatedAt: row.createdAt,
			UpdatedAt: row.updatedAt,
		},
	}
	if query.Includes(domain.FieldGroupCandidate) {
		item.Candidate = &domain.SubmissionListCandidate{PublicID: row.candidatePublicID}
	}
	if query.Includes(domain.FieldGroupAssignment) {
		item.Assignment = &domain.SubmissionListAssignment{PublicID: row.assignmentPublicID}
	}
	if query.Includes(domain.FieldGroupSource) {
		if src := r.sourceForSubmissionLocked(row.publicID); src != nil {
			item.Source = &domain.SubmissionListSource{Type: src.sourceType, ExternalID: src.externalID}
		}
	}
	if query.Includes(domain.FieldGroupEvaluation) {
		ev := &domain.SubmissionListEvaluation{}
		if stored, ok := r.evaluations[row.publicID]; ok {
			score := stored.rec.Score1To10
			ev.Score1To10 = &score
			ev.CriteriaScores = stored.rec.CriteriaScores
			ev.OrganizerFeedback = stored.rec.OrganizerFeedback
			ev.CandidateFeedback = stored.rec.CandidateFeedback
		}
		if runs := r.llmRuns[row.publicID]; len(runs) > 0 {
			latest := runs[len(runs)-1].rec
			ev.ChainVersion = &latest.ChainVersion
			ev.Model = &latest.Model
			ev.SpecVersion = &latest.SpecVersion
			ev.ResponseLanguage = &latest.ResponseLanguage
		}
		item.Evaluation = ev
	}
	if query.Includes(domain.FieldGroupOps) {
		item.Ops = &domain.SubmissionListOps{
			LastErrorCode:    copyStr(row.lastErrorCode),
			LastErrorMessage: copyStr(row.lastErrorMessage),
		}
	}
	return item
}

func containsState(haystack []domain.State, needle domain.State) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
