package handlers_test

import (
	"context"
	"errors"
	"strings"
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
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/worker/handlers"
)

const testChainSpec = `
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
    Rubric: {{rubric.criteria}}
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
    ai_assistance:
      type: object
      required: [likelihood, confidence]
      properties:
        likelihood:
          type: number
          minimum: 0
          maximum: 1
        confidence:
          type: number
          minimum: 0
          maximum: 1
`

type fixture struct {
	deps     handlers.Deps
	repo     *memory.Repository
	store    *storage.MemoryStore
	telegram *telegram.StubClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	spec, err := chain.ParseSpec([]byte(testChainSpec))
	require.NoError(t, err)

	repo := memory.New()
	store := storage.NewMemoryStore()
	tg := telegram.NewStubClient()
	artifacts, err := artifact.NewVersionedRepository(store, "v1", artifact.PolicyStrict)
	require.NoError(t, err)

	return &fixture{
		deps: handlers.Deps{
			Repo:      repo,
			Storage:   store,
			Artifacts: artifacts,
			Telegram:  tg,
			LLM:       aistub.New(),
			Chain:     spec,
			Provider:  "stub",
			APIBase:   "stub://local",
		},
		repo:     repo,
		store:    store,
		telegram: tg,
	}
}

func (f *fixture) seed(t *testing.T, sourceType, externalID string, status domain.State, metadata map[string]any) string {
	t.Helper()
	ctx := context.Background()
	cand, err := f.repo.CreateCandidate(ctx, "Ada", "Lovelace")
	require.NoError(t, err)
	asg, err := f.repo.CreateAssignment(ctx, "Build a rate limiter", "Token bucket with tests", true)
	require.NoError(t, err)
	res, err := f.repo.CreateSubmissionWithSource(ctx, domain.CreateSubmissionParams{
		CandidatePublicID:  cand.CandidatePublicID,
		AssignmentPublicID: asg.AssignmentPublicID,
		SourceType:         sourceType,
		SourceExternalID:   externalID,
		InitialStatus:      status,
		Metadata:           metadata,
	})
	require.NoError(t, err)
	return res.SubmissionID
}

func claimFor(id string) domain.WorkItemClaim {
	return domain.WorkItemClaim{SubmissionID: id, Attempt: 1}
}

func TestForRoleMapsWorkerRoles(t *testing.T) {
	f := newFixture(t)
	for _, role := range []string{
		domain.RoleIngestTelegram,
		domain.RoleNormalize,
		domain.RoleEvaluate,
		domain.RoleDeliver,
	} {
		fn, err := f.deps.ForRole(role)
		require.NoError(t, err, role)
		require.NotNil(t, fn, role)
	}
	_, err := f.deps.ForRole(domain.RoleAPI)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIngestTelegramStoresRawArtifact(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeTelegramWebhook, "upd:100", domain.StateTelegramUpdateReceived,
		map[string]any{"file_id": "tg-file-1", "file_name": "solution.txt"})
	f.telegram.AddFile("tg-file-1", []byte("my solution"))

	res := f.deps.IngestTelegram(context.Background(), claimFor(id))
	require.True(t, res.Success, res.Detail)

	payload, err := f.store.GetBytes(context.Background(), "raw/"+id+"/solution.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("my solution"), payload)
	assert.Equal(t, "s3://raw/"+id+"/solution.txt", res.ArtifactRef)
}

func TestIngestTelegramWithoutFileIDIsTerminal(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeTelegramWebhook, "upd:101", domain.StateTelegramUpdateReceived, nil)

	res := f.deps.IngestTelegram(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeTelegramUpdateInvalid, res.ErrorCode)
}

func TestIngestTelegramFetchFailureIsRecoverable(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeTelegramWebhook, "upd:102", domain.StateTelegramUpdateReceived,
		map[string]any{"file_id": "never-uploaded"})

	res := f.deps.IngestTelegram(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeTelegramFileFetchFailed, res.ErrorCode)
}

func TestIngestTelegramRejectsNonWebhookSource(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:1", domain.StateUploaded, nil)

	res := f.deps.IngestTelegram(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeTelegramUpdateInvalid, res.ErrorCode)
}

func linkRaw(t *testing.T, f *fixture, id, name string, payload []byte) {
	t.Helper()
	ctx := context.Background()
	key := "raw/" + id + "/" + name
	ref, err := f.store.PutBytes(ctx, key, payload)
	require.NoError(t, err)
	require.NoError(t, f.repo.LinkArtifact(ctx, id, domain.StageRaw, ref, ""))
}

func TestNormalizeProducesCanonicalMarkdown(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:2", domain.StateUploaded, nil)
	linkRaw(t, f, id, "solution.txt", []byte("Title\r\n\r\n\r\n\r\nBody  with\tgaps\r\n"))

	res := f.deps.Normalize(context.Background(), claimFor(id))
	require.True(t, res.Success, res.Detail)
	assert.Equal(t, artifact.SchemaNormalizedV1, res.ArtifactVersion)

	loaded, err := f.deps.Artifacts.LoadNormalized(context.Background(), res.ArtifactRef)
	require.NoError(t, err)
	assert.Equal(t, "Title\n\nBody with gaps", loaded.ContentMarkdown)
	assert.Equal(t, id, loaded.SubmissionPublicID)
	assert.Equal(t, domain.SourceTypeAPIUpload, loaded.SourceType)
	assert.Equal(t, ".txt", loaded.NormalizationMetadata["original_extension"])
}

func TestNormalizeRejectsUnsupportedExtension(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:3", domain.StateUploaded, nil)
	linkRaw(t, f, id, "solution.pdf", []byte("%PDF-1.7 not really"))

	res := f.deps.Normalize(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeUnsupportedFormat, res.ErrorCode)
}

func TestNormalizeRejectsBinaryPayload(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:4", domain.StateUploaded, nil)
	// PNG magic under a text extension.
	linkRaw(t, f, id, "solution.txt", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0})

	res := f.deps.Normalize(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeUnsupportedFormat, res.ErrorCode)
}

func TestNormalizeWithoutRawArtifactRetries(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:5", domain.StateUploaded, nil)

	res := f.deps.Normalize(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeArtifactMissing, res.ErrorCode)
}

func seedNormalized(t *testing.T, f *fixture, id string) {
	t.Helper()
	ctx := context.Background()
	snap, err := f.repo.GetSubmission(ctx, id)
	require.NoError(t, err)
	ref, err := f.deps.Artifacts.SaveNormalized(ctx, id, artifact.NormalizedArtifact{
		SubmissionPublicID: id,
		AssignmentPublicID: snap.AssignmentPublicID,
		SourceType:         domain.SourceTypeAPIUpload,
		ContentMarkdown:    "# Rate limiter\n\nToken bucket implementation.",
		SchemaVersion:      artifact.SchemaNormalizedV1,
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.LinkArtifact(ctx, id, domain.StageNormalized, ref, artifact.SchemaNormalizedV1))
}

func TestEvaluatePersistsEvaluationAndRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:6", domain.StateNormalized, nil)
	seedNormalized(t, f, id)

	res := f.deps.Evaluate(ctx, claimFor(id))
	require.True(t, res.Success, res.Detail)
	// Stub scores 8,7,8,7 over weights .4/.3/.2/.1 round to 8.
	assert.Contains(t, res.Detail, "scored 8/10")

	items, err := f.repo.ListSubmissions(ctx, domain.SubmissionListQuery{
		SubmissionIDs: []string{id},
		Include:       []domain.FieldGroup{domain.FieldGroupEvaluation},
		Limit:         1,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	ev := items[0].Evaluation
	require.NotNil(t, ev)
	require.NotNil(t, ev.Score1To10)
	assert.Equal(t, 8, *ev.Score1To10)
	assert.Contains(t, ev.CriteriaScores, "correctness")
	require.NotNil(t, ev.ChainVersion)
	assert.Equal(t, "chain:v1", *ev.ChainVersion)
	require.NotNil(t, ev.Model)
	assert.Equal(t, "gpt-test", *ev.Model)

	// Raw reply retained for audit.
	_, err = f.store.GetBytes(ctx, "eval/"+id+".json")
	assert.NoError(t, err)
}

func TestEvaluateWithoutNormalizedArtifactRetries(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:7", domain.StateNormalized, nil)

	res := f.deps.Evaluate(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeArtifactMissing, res.ErrorCode)
}

type malformedLLM struct{}

func (malformedLLM) Evaluate(context.Context, domain.LLMClientRequest) (domain.LLMClientResult, error) {
	return domain.LLMClientResult{
		RawText: `{"criteria": []}`,
		RawJSON: map[string]any{"criteria": []any{}},
	}, nil
}

type unavailableLLM struct{}

func (unavailableLLM) Evaluate(context.Context, domain.LLMClientRequest) (domain.LLMClientResult, error) {
	return domain.LLMClientResult{}, errors.New("upstream 503")
}

func TestEvaluateRejectsMalformedReply(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:8", domain.StateNormalized, nil)
	seedNormalized(t, f, id)
	f.deps.LLM = malformedLLM{}

	res := f.deps.Evaluate(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeSchemaValidationFailed, res.ErrorCode)
}

func TestEvaluateProviderOutageIsRecoverable(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:9", domain.StateNormalized, nil)
	seedNormalized(t, f, id)
	f.deps.LLM = unavailableLLM{}

	res := f.deps.Evaluate(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeLLMProviderUnavailable, res.ErrorCode)
}

func TestDeliverExportsAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:10", domain.StateNormalized, nil)
	seedNormalized(t, f, id)
	require.True(t, f.deps.Evaluate(ctx, claimFor(id)).Success)

	res := f.deps.Deliver(ctx, claimFor(id))
	require.True(t, res.Success, res.Detail)
	assert.Equal(t, artifact.SchemaExportsV1, res.ArtifactVersion)
	assert.True(t, strings.Contains(res.ArtifactRef, "exports/"), res.ArtifactRef)

	payload, err := f.store.GetBytes(ctx, artifact.StorageKeyFromRef(res.ArtifactRef))
	require.NoError(t, err)
	csv := string(payload)
	assert.Contains(t, csv, "candidate_identifier")
	assert.Contains(t, csv, "chain:v1")
	assert.Contains(t, csv, "correctness=8")

	assert.Equal(t, 1, f.telegram.NotificationCount())
	deliveries := f.repo.Deliveries(id)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "sent", deliveries[0].Status)
	require.NotNil(t, deliveries[0].ExternalMessageID)
}

func TestDeliverWithoutEvaluationRetries(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:11", domain.StateEvaluated, nil)

	res := f.deps.Deliver(context.Background(), claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeArtifactMissing, res.ErrorCode)
}

type failingTelegram struct {
	*telegram.StubClient
}

func (failingTelegram) SendResultNotification(context.Context, string, string) (string, error) {
	return "", errors.New("telegram api down")
}

func TestDeliverTransportFailureRecordsAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, domain.SourceTypeAPIUpload, "up:12", domain.StateNormalized, nil)
	seedNormalized(t, f, id)
	require.True(t, f.deps.Evaluate(ctx, claimFor(id)).Success)
	f.deps.Telegram = failingTelegram{f.telegram}

	res := f.deps.Deliver(ctx, claimFor(id))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorCodeDeliveryTransportFailed, res.ErrorCode)

	deliveries := f.repo.Deliveries(id)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "failed", deliveries[0].Status)
	require.NotNil(t, deliveries[0].LastErrorCode)
	assert.Equal(t, string(domain.ErrorCodeDeliveryTransportFailed), *deliveries[0].LastErrorCode)
}
