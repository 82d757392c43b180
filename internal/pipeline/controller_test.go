package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aistub "github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/repo/memory"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/storage"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/telegram"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/artifact"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/chain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/pipeline"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/worker/handlers"
)

const e2eChainSpec = `
spec_version: spec:v1
chain_version: chain:v1
model: gpt-test
runtime:
  temperature: 0.1
  seed: 42
  response_language: en
rubric:
  criteria:
    - id: correctness
      description: Does the solution work
      weight: 0.4
    - id: completeness
      description: Are all requirements covered
      weight: 0.3
    - id: code_quality
      description: Is the code readable
      weight: 0.2
    - id: edge_cases
      description: Are edge cases handled
      weight: 0.1
  ai_assistance_policy:
    enabled: true
    affects_score: false
    require_fields: [likelihood, confidence]
prompts:
  system: You are a strict assignment evaluator.
  user_template: |
    Assignment: {{assignment_title}}
    Submission:
    {{content_markdown}}
llm_response:
  type: json
  required: [criteria, organizer_feedback, ai_assistance]
  properties:
    criteria:
      type: array
      items:
        type: object
        required: [id, score]
        properties:
          id:
            type: string
          score:
            type: integer
            minimum: 1
            maximum: 10
`

type world struct {
	controller *pipeline.Controller
	repo       *memory.Repository
	store      *storage.MemoryStore
	telegram   *telegram.StubClient
	candidate  domain.CandidateSnapshot
	assignment domain.AssignmentSnapshot
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	spec, err := chain.ParseSpec([]byte(e2eChainSpec))
	require.NoError(t, err)

	repo := memory.New()
	store := storage.NewMemoryStore()
	tg := telegram.NewStubClient()
	artifacts, err := artifact.NewVersionedRepository(store, "v1", artifact.PolicyStrict)
	require.NoError(t, err)

	controller, err := pipeline.NewController(handlers.Deps{
		Repo:      repo,
		Storage:   store,
		Artifacts: artifacts,
		Telegram:  tg,
		LLM:       aistub.New(),
		Chain:     spec,
		Provider:  "stub",
		APIBase:   "stub://local",
	}, "e2e")
	require.NoError(t, err)

	cand, err := repo.CreateCandidate(ctx, "Ada", "Lovelace")
	require.NoError(t, err)
	asg, err := repo.CreateAssignment(ctx, "Build a rate limiter", "Token bucket with tests", true)
	require.NoError(t, err)

	return &world{
		controller: controller,
		repo:       repo,
		store:      store,
		telegram:   tg,
		candidate:  cand,
		assignment: asg,
	}
}

func (w *world) submit(t *testing.T, sourceType, externalID string, status domain.State, metadata map[string]any) string {
	t.Helper()
	res, err := w.repo.CreateSubmissionWithSource(context.Background(), domain.CreateSubmissionParams{
		CandidatePublicID:  w.candidate.CandidatePublicID,
		AssignmentPublicID: w.assignment.AssignmentPublicID,
		SourceType:         sourceType,
		SourceExternalID:   externalID,
		InitialStatus:      status,
		Metadata:           metadata,
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.SubmissionID
}

func (w *world) status(t *testing.T, id string) domain.State {
	t.Helper()
	snap, err := w.repo.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	return snap.Status
}

func TestPipelineDeliversTelegramSubmission(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.telegram.AddFile("tg-file-1", []byte("# Solution\r\n\r\nToken bucket with refill goroutine.\r\n"))
	id := w.submit(t, domain.SourceTypeTelegramWebhook, "upd:500", domain.StateTelegramUpdateReceived,
		map[string]any{"file_id": "tg-file-1", "file_name": "solution.md"})

	processed, err := w.controller.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, processed)
	assert.Equal(t, domain.StateDelivered, w.status(t, id))

	for _, stage := range []domain.Stage{domain.StageRaw, domain.StageNormalized, domain.StageExports} {
		ref, err := w.repo.GetArtifactRef(ctx, id, stage)
		require.NoError(t, err, stage)
		assert.NotEmpty(t, ref, stage)
	}

	items, err := w.repo.ListSubmissions(ctx, domain.SubmissionListQuery{
		SubmissionIDs: []string{id},
		Include:       []domain.FieldGroup{domain.FieldGroupEvaluation},
		Limit:         1,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Evaluation)
	require.NotNil(t, items[0].Evaluation.Score1To10)
	assert.Equal(t, 8, *items[0].Evaluation.Score1To10)

	assert.Equal(t, 1, w.telegram.NotificationCount())
	deliveries := w.repo.Deliveries(id)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "sent", deliveries[0].Status)
}

func TestPipelineDeliversAPIUpload(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	id := w.submit(t, domain.SourceTypeAPIUpload, "sha256:abc", domain.StateUploaded, nil)
	ref, err := w.store.PutBytes(ctx, "raw/"+id+"/solution.txt", []byte("plain text solution"))
	require.NoError(t, err)
	require.NoError(t, w.repo.LinkArtifact(ctx, id, domain.StageRaw, ref, ""))

	processed, err := w.controller.Drain(ctx)
	require.NoError(t, err)
	// Uploads skip the ingest stage.
	assert.Equal(t, 3, processed)
	assert.Equal(t, domain.StateDelivered, w.status(t, id))
}

func TestPipelineParksUnsupportedFormat(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	id := w.submit(t, domain.SourceTypeAPIUpload, "sha256:zip", domain.StateUploaded, nil)
	ref, err := w.store.PutBytes(ctx, "raw/"+id+"/archive.zip", []byte("PK\x03\x04fake"))
	require.NoError(t, err)
	require.NoError(t, w.repo.LinkArtifact(ctx, id, domain.StageRaw, ref, ""))

	_, err = w.controller.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailedNormalization, w.status(t, id))

	snap, err := w.repo.GetSubmission(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap.LastErrorCode)
	assert.Equal(t, string(domain.ErrorCodeUnsupportedFormat), *snap.LastErrorCode)
	assert.Equal(t, 1, snap.AttemptNormalization)
}

func TestPipelineDeadLettersAfterRetryBudget(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	// A webhook whose file the transport never serves: every ingest attempt
	// fails recoverably until the budget is spent.
	id := w.submit(t, domain.SourceTypeTelegramWebhook, "upd:501", domain.StateTelegramUpdateReceived,
		map[string]any{"file_id": "missing-file"})

	_, err := w.controller.Drain(ctx)
	require.NoError(t, err)

	snap, err := w.repo.GetSubmission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeadLetter, snap.Status)
	assert.Equal(t, domain.DefaultMaxAttempts, snap.AttemptTelegramIngest)
	require.NotNil(t, snap.LastErrorCode)
	assert.Equal(t, string(domain.ErrorCodeTelegramFileFetchFailed), *snap.LastErrorCode)
}

func TestPipelineSkipsExportWithoutChainMetadata(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	// Evaluation persisted without its llm_run: chain metadata is missing,
	// so no export row may be produced.
	id := w.submit(t, domain.SourceTypeAPIUpload, "sha256:meta", domain.StateEvaluated, nil)
	require.NoError(t, w.repo.PersistEvaluation(ctx, domain.EvaluationRecord{
		SubmissionID:   id,
		Score1To10:     9,
		CriteriaScores: map[string]any{"correctness": map[string]any{"score": 9}},
	}))

	_, err := w.controller.Drain(ctx)
	require.NoError(t, err)

	snap, err := w.repo.GetSubmission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeadLetter, snap.Status)
	assert.Equal(t, 0, w.telegram.NotificationCount())
	assert.Equal(t, 0, w.store.Len())

	_, err = w.repo.GetArtifactRef(ctx, id, domain.StageExports)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
