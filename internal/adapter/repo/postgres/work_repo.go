package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/artifact"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// WorkRepo implements domain.WorkRepository on PostgreSQL.
type WorkRepo struct{ Pool PgxPool }

// NewWorkRepo constructs a WorkRepo with the given pool.
func NewWorkRepo(p PgxPool) *WorkRepo { return &WorkRepo{Pool: p} }

// CreateCandidate inserts a candidate and returns its snapshot.
func (r *WorkRepo) CreateCandidate(ctx context.Context, firstName, lastName string) (domain.CandidateSnapshot, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.CreateCandidate")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "candidates"),
	)
	publicID := domain.NewCandidatePublicID()
	q := `INSERT INTO candidates (public_id, first_name, last_name) VALUES ($1,$2,$3)`
	if _, err := r.Pool.Exec(ctx, q, publicID, firstName, lastName); err != nil {
		return domain.CandidateSnapshot{}, fmt.Errorf("op=work.create_candidate: %w", err)
	}
	return domain.CandidateSnapshot{CandidatePublicID: publicID, FirstName: firstName, LastName: lastName}, nil
}

// GetOrCreateCandidateBySource upserts the candidate keyed on the source
// pair. The insert races through ON CONFLICT DO NOTHING; losers re-read.
func (r *WorkRepo) GetOrCreateCandidateBySource(ctx context.Context, sourceType, sourceExternalID, firstName, lastName string, metadata map[string]any) (domain.CandidateSnapshot, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.GetOrCreateCandidateBySource")
	defer span.End()

	sel := `SELECT c.public_id, c.first_name, c.last_name
		FROM candidate_sources cs JOIN candidates c ON c.id = cs.candidate_id
		WHERE cs.source_type=$1 AND cs.source_external_id=$2`
	var snap domain.CandidateSnapshot
	err := r.Pool.QueryRow(ctx, sel, sourceType, sourceExternalID).
		Scan(&snap.CandidatePublicID, &snap.FirstName, &snap.LastName)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.CandidateSnapshot{}, fmt.Errorf("op=work.get_or_create_candidate: %w", err)
	}

	meta, err := json.Marshal(orEmpty(metadata))
	if err != nil {
		return domain.CandidateSnapshot{}, fmt.Errorf("op=work.get_or_create_candidate: %w", err)
	}
	publicID := domain.NewCandidatePublicID()
	ins := `WITH c AS (
			INSERT INTO candidates (public_id, first_name, last_name) VALUES ($1,$2,$3) RETURNING id
		)
		INSERT INTO candidate_sources (candidate_id, source_type, source_external_id, metadata)
		SELECT c.id, $4, $5, $6 FROM c
		ON CONFLICT (source_type, source_external_id) DO NOTHING`
	tag, err := r.Pool.Exec(ctx, ins, publicID, firstName, lastName, sourceType, sourceExternalID, meta)
	if err != nil {
		return domain.CandidateSnapshot{}, fmt.Errorf("op=work.get_or_create_candidate: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.CandidateSnapshot{CandidatePublicID: publicID, FirstName: firstName, LastName: lastName}, nil
	}
	// Lost the race; the winner's row is committed.
	if err := r.Pool.QueryRow(ctx, sel, sourceType, sourceExternalID).
		Scan(&snap.CandidatePublicID, &snap.FirstName, &snap.LastName); err != nil {
		return domain.CandidateSnapshot{}, fmt.Errorf("op=work.get_or_create_candidate: %w", err)
	}
	return snap, nil
}

// CreateAssignment inserts an assignment.
func (r *WorkRepo) CreateAssignment(ctx context.Context, title, description string, isActive bool) (domain.AssignmentSnapshot, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.CreateAssignment")
	defer span.End()
	publicID := domain.NewAssignmentPublicID()
	q := `INSERT INTO assignments (public_id, title, description, is_active) VALUES ($1,$2,$3,$4)`
	if _, err := r.Pool.Exec(ctx, q, publicID, title, description, isActive); err != nil {
		return domain.AssignmentSnapshot{}, fmt.Errorf("op=work.create_assignment: %w", err)
	}
	return domain.AssignmentSnapshot{AssignmentPublicID: publicID, Title: title, Description: description, IsActive: isActive}, nil
}

// ListAssignments returns assignments in creation order.
func (r *WorkRepo) ListAssignments(ctx context.Context, activeOnly bool) ([]domain.AssignmentSnapshot, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.ListAssignments")
	defer span.End()
	q := `SELECT public_id, title, description, is_active FROM assignments`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY id`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=work.list_assignments: %w", err)
	}
	defer rows.Close()
	var out []domain.AssignmentSnapshot
	for rows.Next() {
		var a domain.AssignmentSnapshot
		if err := rows.Scan(&a.AssignmentPublicID, &a.Title, &a.Description, &a.IsActive); err != nil {
			return nil, fmt.Errorf("op=work.list_assignments: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=work.list_assignments: %w", err)
	}
	return out, nil
}

// insertSubmissionSQL resolves candidate and assignment internal ids in the
// same statement; zero rows means one of the public ids does not exist.
const insertSubmissionSQL = `INSERT INTO submissions (public_id, candidate_id, assignment_id, status)
	SELECT $1, c.id, a.id, $4 FROM candidates c, assignments a
	WHERE c.public_id=$2 AND a.public_id=$3
	RETURNING id`

// CreateSubmissionWithSource inserts a submission and its source row in one
// transaction. A conflicting source pair rolls back and returns the existing
// submission with Created=false.
func (r *WorkRepo) CreateSubmissionWithSource(ctx context.Context, params domain.CreateSubmissionParams) (domain.UpsertSourceResult, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.CreateSubmissionWithSource")
	defer span.End()

	if !domain.IsValidState(params.InitialStatus) {
		return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: invalid initial status %q: %w", params.InitialStatus, domain.ErrValidation)
	}
	meta, err := json.Marshal(orEmpty(params.Metadata))
	if err != nil {
		return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: %w", err)
	}

	findExisting := func() (domain.UpsertSourceResult, error) {
		q := `SELECT s.public_id, s.status
			FROM submission_sources ss JOIN submissions s ON s.id = ss.submission_id
			WHERE ss.source_type=$1 AND ss.source_external_id=$2`
		var res domain.UpsertSourceResult
		if err := r.Pool.QueryRow(ctx, q, params.SourceType, params.SourceExternalID).Scan(&res.SubmissionID, &res.Status); err != nil {
			return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: %w", err)
		}
		return res, nil
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	publicID := domain.NewSubmissionPublicID()
	var subID int64
	if err := tx.QueryRow(ctx, insertSubmissionSQL, publicID, params.CandidatePublicID, params.AssignmentPublicID, params.InitialStatus).Scan(&subID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: candidate or assignment not found: %w", domain.ErrInvariant)
		}
		return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: %w", err)
	}
	insSrc := `INSERT INTO submission_sources (submission_id, source_type, source_external_id, payload_ref, metadata)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (source_type, source_external_id) DO NOTHING`
	tag, err := tx.Exec(ctx, insSrc, subID, params.SourceType, params.SourceExternalID, params.SourcePayloadRef, meta)
	if err != nil {
		return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Source pair already claimed by an earlier submission.
		if err := tx.Rollback(ctx); err != nil {
			return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: %w", err)
		}
		return findExisting()
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.UpsertSourceResult{}, fmt.Errorf("op=work.create_submission: %w", err)
	}
	return domain.UpsertSourceResult{SubmissionID: publicID, Status: params.InitialStatus, Created: true}, nil
}

// FindSubmissionSource returns the source row for a pair, or nil.
func (r *WorkRepo) FindSubmissionSource(ctx context.Context, sourceType, sourceExternalID string) (*domain.SubmissionSourceSnapshot, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.FindSubmissionSource")
	defer span.End()
	q := `SELECT s.public_id, ss.source_type, ss.source_external_id, ss.metadata
		FROM submission_sources ss JOIN submissions s ON s.id = ss.submission_id
		WHERE ss.source_type=$1 AND ss.source_external_id=$2`
	var snap domain.SubmissionSourceSnapshot
	var meta []byte
	err := r.Pool.QueryRow(ctx, q, sourceType, sourceExternalID).
		Scan(&snap.SubmissionID, &snap.SourceType, &snap.SourceExternalID, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=work.find_source: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &snap.Metadata); err != nil {
			return nil, fmt.Errorf("op=work.find_source: %w", err)
		}
	}
	return &snap, nil
}

const submissionColumns = `s.public_id, c.public_id, a.public_id, s.status,
	s.attempt_telegram_ingest, s.attempt_normalization, s.attempt_evaluation, s.attempt_delivery,
	s.claimed_by, s.claimed_at, s.lease_expires_at,
	s.last_error_code, s.last_error_message, s.created_at, s.updated_at`

func scanSubmission(row pgx.Row) (domain.SubmissionSnapshot, error) {
	var snap domain.SubmissionSnapshot
	err := row.Scan(&snap.SubmissionID, &snap.CandidatePublicID, &snap.AssignmentPublicID, &snap.Status,
		&snap.AttemptTelegramIngest, &snap.AttemptNormalization, &snap.AttemptEvaluation, &snap.AttemptDelivery,
		&snap.ClaimedBy, &snap.ClaimedAt, &snap.LeaseExpiresAt,
		&snap.LastErrorCode, &snap.LastErrorMessage, &snap.CreatedAt, &snap.UpdatedAt)
	return snap, err
}

// GetSubmission loads a submission by public id, or nil when absent.
func (r *WorkRepo) GetSubmission(ctx context.Context, submissionID string) (*domain.SubmissionSnapshot, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.GetSubmission")
	defer span.End()
	q := `SELECT ` + submissionColumns + `
		FROM submissions s
		JOIN candidates c ON c.id = s.candidate_id
		JOIN assignments a ON a.id = s.assignment_id
		WHERE s.public_id=$1`
	snap, err := scanSubmission(r.Pool.QueryRow(ctx, q, submissionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=work.get_submission: %w", err)
	}
	return &snap, nil
}

// ClaimNext claims the oldest submission in the stage's source state. The
// SKIP LOCKED scan keeps concurrent claimants off each other's rows; the
// update stamps ownership, lease, and charges one attempt.
func (r *WorkRepo) ClaimNext(ctx context.Context, stage domain.Stage, workerID string, leaseSeconds int) (*domain.WorkItemClaim, error) {
	lc, ok := domain.LifecycleForStage(stage)
	if !ok {
		return nil, fmt.Errorf("op=work.claim_next: unknown stage %q: %w", stage, domain.ErrValidation)
	}
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.ClaimNext")
	defer span.End()
	span.SetAttributes(attribute.String("stage", string(stage)))

	// The attempt column comes from the closed lifecycle table, never from
	// caller input.
	q := fmt.Sprintf(`WITH next AS (
			SELECT id FROM submissions
			WHERE status=$1
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE submissions s SET
			status=$2,
			claimed_by=$3,
			claimed_at=now(),
			lease_expires_at=now() + make_interval(secs => $4),
			%[1]s=%[1]s+1,
			updated_at=now()
		FROM next WHERE s.id = next.id
		RETURNING s.public_id, s.%[1]s, s.lease_expires_at`, lc.AttemptField)
	var claim domain.WorkItemClaim
	err := r.Pool.QueryRow(ctx, q, lc.SourceState, lc.InProgressState, workerID, leaseSeconds).
		Scan(&claim.SubmissionID, &claim.Attempt, &claim.LeaseExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=work.claim_next: %w", err)
	}
	claim.Stage = lc.InProgressState
	return &claim, nil
}

// HeartbeatClaim extends a live, owned lease; it never revives an expired
// one.
func (r *WorkRepo) HeartbeatClaim(ctx context.Context, submissionID string, stage domain.Stage, workerID string, leaseSeconds int) (bool, error) {
	lc, ok := domain.LifecycleForStage(stage)
	if !ok {
		return false, fmt.Errorf("op=work.heartbeat: unknown stage %q: %w", stage, domain.ErrValidation)
	}
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.HeartbeatClaim")
	defer span.End()
	q := `UPDATE submissions SET
			lease_expires_at=now() + make_interval(secs => $4),
			updated_at=now()
		WHERE public_id=$1 AND status=$2 AND claimed_by=$3 AND lease_expires_at > now()`
	tag, err := r.Pool.Exec(ctx, q, submissionID, lc.InProgressState, workerID, leaseSeconds)
	if err != nil {
		return false, fmt.Errorf("op=work.heartbeat: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReclaimExpiredClaims routes every expired in-progress claim for the stage
// back to its source state, or to dead_letter once the attempt budget is
// spent. The reclaim itself charges an attempt, capped at the budget.
func (r *WorkRepo) ReclaimExpiredClaims(ctx context.Context, stage domain.Stage) (int, error) {
	lc, ok := domain.LifecycleForStage(stage)
	if !ok {
		return 0, fmt.Errorf("op=work.reclaim: unknown stage %q: %w", stage, domain.ErrValidation)
	}
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.ReclaimExpiredClaims")
	defer span.End()
	span.SetAttributes(attribute.String("stage", string(stage)))

	q := fmt.Sprintf(`UPDATE submissions SET
			status = CASE WHEN %[1]s+1 < $2 THEN $3 ELSE 'dead_letter' END,
			%[1]s = LEAST(%[1]s+1, $2),
			claimed_by=NULL, claimed_at=NULL, lease_expires_at=NULL,
			last_error_code=$4,
			last_error_message='claim lease expired and was reclaimed',
			updated_at=now()
		WHERE status=$1 AND (lease_expires_at IS NULL OR lease_expires_at <= now())`, lc.AttemptField)
	tag, err := r.Pool.Exec(ctx, q, lc.InProgressState, lc.MaxAttempts, lc.SourceState, string(domain.ErrorCodeLeaseExpired))
	if err != nil {
		return 0, fmt.Errorf("op=work.reclaim: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// TransitionState applies a compare-and-set transition over the closed
// graph. from == to is an idempotent no-op.
func (r *WorkRepo) TransitionState(ctx context.Context, submissionID string, from, to domain.State) error {
	if from == to {
		return nil
	}
	if !domain.TransitionAllowed(from, to) {
		return fmt.Errorf("op=work.transition: invalid transition %s -> %s: %w", from, to, domain.ErrInvariant)
	}
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.TransitionState")
	defer span.End()
	q := `UPDATE submissions SET status=$3, updated_at=now() WHERE public_id=$1 AND status=$2`
	tag, err := r.Pool.Exec(ctx, q, submissionID, from, to)
	if err != nil {
		return fmt.Errorf("op=work.transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=work.transition: transition rejected for %s: %w", submissionID, domain.ErrInvariant)
	}
	return nil
}

// Finalize completes a claim under the ownership guard (still in-progress,
// owned by workerID, live lease). Failures route through the taxonomy:
// terminal codes land in the stage's failed state without charging an
// attempt; recoverable codes return to the source state until the attempt
// budget is spent, then dead_letter.
func (r *WorkRepo) Finalize(ctx context.Context, submissionID string, stage domain.Stage, workerID string, success bool, detail string, errorCode domain.ErrorCode) error {
	lc, ok := domain.LifecycleForStage(stage)
	if !ok {
		return fmt.Errorf("op=work.finalize: unknown stage %q: %w", stage, domain.ErrValidation)
	}
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.Finalize")
	defer span.End()
	span.SetAttributes(
		attribute.String("stage", string(stage)),
		attribute.Bool("success", success),
	)

	guard := ` WHERE public_id=$1 AND status=$2 AND claimed_by=$3 AND lease_expires_at > now()`

	var q string
	var args []any
	switch {
	case success:
		q = `UPDATE submissions SET
				status=$4,
				claimed_by=NULL, claimed_at=NULL, lease_expires_at=NULL,
				last_error_code=NULL, last_error_message=NULL,
				updated_at=now()` + guard
		args = []any{submissionID, lc.InProgressState, workerID, lc.SuccessState}
	default:
		if errorCode == "" {
			errorCode = domain.ErrorCodeInternal
		}
		resolved := domain.ResolveStageError(stage, errorCode)
		if domain.ClassifyError(resolved) == domain.RetryTerminal {
			q = `UPDATE submissions SET
					status=$4,
					claimed_by=NULL, claimed_at=NULL, lease_expires_at=NULL,
					last_error_code=$5, last_error_message=$6,
					updated_at=now()` + guard
			args = []any{submissionID, lc.InProgressState, workerID, lc.FailedState, string(resolved), detail}
		} else {
			q = fmt.Sprintf(`UPDATE submissions SET
					status = CASE WHEN %s < $4 THEN $5::text ELSE 'dead_letter' END,
					claimed_by=NULL, claimed_at=NULL, lease_expires_at=NULL,
					last_error_code=$6, last_error_message=$7,
					updated_at=now()`, lc.AttemptField) + guard
			args = []any{submissionID, lc.InProgressState, workerID, lc.MaxAttempts, lc.SourceState, string(resolved), detail}
		}
	}
	tag, err := r.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("op=work.finalize: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=work.finalize: rejected by ownership guard for %s: %w", submissionID, domain.ErrInvariant)
	}
	return nil
}

// LinkArtifact upserts the (submission, stage) artifact link. Refs persist
// as bare storage keys.
func (r *WorkRepo) LinkArtifact(ctx context.Context, submissionID string, stage domain.Stage, artifactRef, artifactVersion string) error {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.LinkArtifact")
	defer span.End()
	q := `INSERT INTO submission_artifacts (submission_id, stage, artifact_ref, artifact_version)
		SELECT s.id, $2, $3, $4 FROM submissions s WHERE s.public_id=$1
		ON CONFLICT (submission_id, stage) DO UPDATE SET
			artifact_ref=EXCLUDED.artifact_ref,
			artifact_version=EXCLUDED.artifact_version,
			updated_at=now()`
	tag, err := r.Pool.Exec(ctx, q, submissionID, string(stage), artifact.StorageKeyFromRef(artifactRef), artifactVersion)
	if err != nil {
		return fmt.Errorf("op=work.link_artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=work.link_artifact: submission %q: %w", submissionID, domain.ErrNotFound)
	}
	return nil
}

// GetArtifactRef returns the linked bare storage key for (submission, stage).
func (r *WorkRepo) GetArtifactRef(ctx context.Context, submissionID string, stage domain.Stage) (string, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.GetArtifactRef")
	defer span.End()
	q := `SELECT sa.artifact_ref FROM submission_artifacts sa
		JOIN submissions s ON s.id = sa.submission_id
		WHERE s.public_id=$1 AND sa.stage=$2`
	var ref string
	err := r.Pool.QueryRow(ctx, q, submissionID, string(stage)).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("op=work.get_artifact_ref: no artifact for submission=%s stage=%s: %w", submissionID, stage, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("op=work.get_artifact_ref: %w", err)
	}
	return ref, nil
}

// PersistEvaluation upserts the evaluation. The reproducibility subset is
// folded into the criteria payload so export reads need no extra join.
func (r *WorkRepo) PersistEvaluation(ctx context.Context, rec domain.EvaluationRecord) error {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.PersistEvaluation")
	defer span.End()

	criteria := make(map[string]any, len(rec.CriteriaScores)+1)
	for k, v := range rec.CriteriaScores {
		criteria[k] = v
	}
	criteria["_reproducibility"] = rec.ReproducibilitySubset
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("op=work.persist_evaluation: %w", err)
	}
	organizer, err := json.Marshal(orEmpty(rec.OrganizerFeedback))
	if err != nil {
		return fmt.Errorf("op=work.persist_evaluation: %w", err)
	}
	candidate, err := json.Marshal(orEmpty(rec.CandidateFeedback))
	if err != nil {
		return fmt.Errorf("op=work.persist_evaluation: %w", err)
	}
	q := `INSERT INTO evaluations (submission_id, score_1_10, criteria_scores, organizer_feedback, candidate_feedback, ai_likelihood, ai_confidence)
		SELECT s.id, $2, $3, $4, $5, $6, $7 FROM submissions s WHERE s.public_id=$1
		ON CONFLICT (submission_id) DO UPDATE SET
			score_1_10=EXCLUDED.score_1_10,
			criteria_scores=EXCLUDED.criteria_scores,
			organizer_feedback=EXCLUDED.organizer_feedback,
			candidate_feedback=EXCLUDED.candidate_feedback,
			ai_likelihood=EXCLUDED.ai_likelihood,
			ai_confidence=EXCLUDED.ai_confidence,
			updated_at=now()`
	tag, err := r.Pool.Exec(ctx, q, rec.SubmissionID, rec.Score1To10, criteriaJSON, organizer, candidate, rec.AILikelihood, rec.AIConfidence)
	if err != nil {
		return fmt.Errorf("op=work.persist_evaluation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=work.persist_evaluation: submission %q: %w", rec.SubmissionID, domain.ErrNotFound)
	}
	return nil
}

// PersistLLMRun appends an authoritative model run record.
func (r *WorkRepo) PersistLLMRun(ctx context.Context, rec domain.LLMRunRecord) error {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.PersistLLMRun")
	defer span.End()
	q := `INSERT INTO llm_runs (submission_id, provider, model, api_base, chain_version, spec_version, response_language, temperature, seed, tokens_input, tokens_output, latency_ms)
		SELECT s.id, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12 FROM submissions s WHERE s.public_id=$1`
	tag, err := r.Pool.Exec(ctx, q, rec.SubmissionID, rec.Provider, rec.Model, rec.APIBase, rec.ChainVersion, rec.SpecVersion, rec.ResponseLanguage, rec.Temperature, rec.Seed, rec.TokensInput, rec.TokensOutput, rec.LatencyMS)
	if err != nil {
		return fmt.Errorf("op=work.persist_llm_run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=work.persist_llm_run: submission %q: %w", rec.SubmissionID, domain.ErrNotFound)
	}
	return nil
}

// PersistDelivery appends a delivery attempt record.
func (r *WorkRepo) PersistDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.PersistDelivery")
	defer span.End()
	q := `INSERT INTO deliveries (submission_id, channel, status, external_message_id, attempts, last_error_code)
		SELECT s.id, $2, $3, $4, $5, $6 FROM submissions s WHERE s.public_id=$1`
	tag, err := r.Pool.Exec(ctx, q, rec.SubmissionID, rec.Channel, rec.Status, rec.ExternalMessageID, rec.Attempts, rec.LastErrorCode)
	if err != nil {
		return fmt.Errorf("op=work.persist_delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=work.persist_delivery: submission %q: %w", rec.SubmissionID, domain.ErrNotFound)
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
