package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

func TestBuildListQueryDefaults(t *testing.T) {
	plan := buildListQuery(domain.SubmissionListQuery{}.Normalize())

	assert.Equal(t,
		"SELECT s.id, s.public_id, s.status, s.created_at, s.updated_at FROM submissions s"+
			" ORDER BY s.created_at ASC, s.id ASC LIMIT $1 OFFSET $2",
		plan.sql)
	assert.Equal(t, []any{100, 0}, plan.args)
	assert.False(t, plan.candidate)
	assert.False(t, plan.evaluation)
}

func TestBuildListQueryStatusesAndPaging(t *testing.T) {
	plan := buildListQuery(domain.SubmissionListQuery{
		Statuses: []domain.State{domain.StateDelivered, domain.StateDeadLetter},
		Limit:    25,
		Offset:   50,
	}.Normalize())

	assert.Contains(t, plan.sql, "WHERE s.status = ANY($1)")
	assert.Contains(t, plan.sql, "LIMIT $2 OFFSET $3")
	require.Len(t, plan.args, 3)
	assert.Equal(t, []string{"delivered", "dead_letter"}, plan.args[0])
	assert.Equal(t, 25, plan.args[1])
	assert.Equal(t, 50, plan.args[2])
}

func TestBuildListQueryEvaluationGroupJoins(t *testing.T) {
	plan := buildListQuery(domain.SubmissionListQuery{
		Include: []domain.FieldGroup{domain.FieldGroupEvaluation},
	}.Normalize())

	assert.True(t, plan.evaluation)
	assert.Contains(t, plan.sql, "LEFT JOIN evaluations e ON e.submission_id = s.id")
	assert.Contains(t, plan.sql, "LEFT JOIN LATERAL (")
	assert.Contains(t, plan.sql, "FROM llm_runs WHERE submission_id = s.id ORDER BY id DESC LIMIT 1")
	assert.Contains(t, plan.sql, "e.score_1_10, e.criteria_scores")
	assert.Contains(t, plan.sql, "lr.chain_version, lr.model")
}

func TestBuildListQueryScoreSortJoinsWithoutProjection(t *testing.T) {
	plan := buildListQuery(domain.SubmissionListQuery{
		SortBy:    domain.SortByScore,
		SortOrder: domain.SortDesc,
	}.Normalize())

	assert.False(t, plan.evaluation)
	assert.Contains(t, plan.sql, "LEFT JOIN evaluations e ON e.submission_id = s.id")
	assert.NotContains(t, plan.sql, "LATERAL")
	assert.Contains(t, plan.sql, "ORDER BY COALESCE(e.score_1_10, 0) DESC, s.id ASC")
}

func TestBuildListQueryFilterJoins(t *testing.T) {
	plan := buildListQuery(domain.SubmissionListQuery{
		CandidatePublicID:  "cand_x",
		AssignmentPublicID: "asg_y",
		SourceType:         domain.SourceTypeTelegramWebhook,
	}.Normalize())

	assert.Contains(t, plan.sql, "JOIN candidates c ON c.id = s.candidate_id")
	assert.Contains(t, plan.sql, "JOIN assignments a ON a.id = s.assignment_id")
	assert.Contains(t, plan.sql, "LEFT JOIN submission_sources ss ON ss.submission_id = s.id")
	assert.Contains(t, plan.sql, "c.public_id = $1")
	assert.Contains(t, plan.sql, "a.public_id = $2")
	assert.Contains(t, plan.sql, "ss.source_type = $3")
	// Filter-only joins must not project the group columns.
	assert.NotContains(t, plan.sql, "SELECT s.id, s.public_id, s.status, s.created_at, s.updated_at, c.public_id")
}

func TestBuildListQueryHasErrorAndCreatedRange(t *testing.T) {
	hasError := true
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	plan := buildListQuery(domain.SubmissionListQuery{
		HasError:    &hasError,
		CreatedFrom: &from,
		CreatedTo:   &to,
	}.Normalize())

	assert.Contains(t, plan.sql, "s.last_error_code IS NOT NULL")
	assert.Contains(t, plan.sql, "s.created_at >= $1")
	assert.Contains(t, plan.sql, "s.created_at <= $2")
	require.Len(t, plan.args, 4)
	assert.Equal(t, from, plan.args[0])
	assert.Equal(t, to, plan.args[1])

	hasError = false
	plan = buildListQuery(domain.SubmissionListQuery{HasError: &hasError}.Normalize())
	assert.Contains(t, plan.sql, "s.last_error_code IS NULL")
}

func TestBuildListQueryOpsGroup(t *testing.T) {
	plan := buildListQuery(domain.SubmissionListQuery{
		Include: []domain.FieldGroup{domain.FieldGroupOps, domain.FieldGroupCandidate},
	}.Normalize())

	assert.True(t, plan.ops)
	assert.True(t, plan.candidate)
	assert.Contains(t, plan.sql, "s.last_error_code, s.last_error_message")
	assert.Contains(t, plan.sql, "c.public_id")
	assert.Contains(t, plan.sql, "JOIN candidates c ON c.id = s.candidate_id")
}
