package postgres

import (
	"context"
	"fmt"
)

// schemaDDL is applied idempotently at startup. The status CHECK pins the
// submission state space; retry accounting lives in per-stage attempt
// columns so finalize and reclaim stay single-statement updates.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS candidates (
	id BIGSERIAL PRIMARY KEY,
	public_id TEXT NOT NULL UNIQUE,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS candidate_sources (
	id BIGSERIAL PRIMARY KEY,
	candidate_id BIGINT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
	source_type TEXT NOT NULL,
	source_external_id TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_type, source_external_id)
);

CREATE TABLE IF NOT EXISTS assignments (
	id BIGSERIAL PRIMARY KEY,
	public_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
	id BIGSERIAL PRIMARY KEY,
	public_id TEXT NOT NULL UNIQUE,
	candidate_id BIGINT NOT NULL REFERENCES candidates(id),
	assignment_id BIGINT NOT NULL REFERENCES assignments(id),
	status TEXT NOT NULL CHECK (status IN (
		'telegram_update_received','telegram_ingest_in_progress',
		'uploaded','normalization_in_progress','normalized',
		'evaluation_in_progress','evaluated',
		'delivery_in_progress','delivered',
		'failed_telegram_ingest','failed_normalization',
		'failed_evaluation','failed_delivery','dead_letter'
	)),
	attempt_telegram_ingest INT NOT NULL DEFAULT 0,
	attempt_normalization INT NOT NULL DEFAULT 0,
	attempt_evaluation INT NOT NULL DEFAULT 0,
	attempt_delivery INT NOT NULL DEFAULT 0,
	claimed_by TEXT,
	claimed_at TIMESTAMPTZ,
	lease_expires_at TIMESTAMPTZ,
	last_error_code TEXT,
	last_error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_status_id ON submissions (status, id);
CREATE INDEX IF NOT EXISTS idx_submissions_status_lease ON submissions (status, lease_expires_at);

CREATE TABLE IF NOT EXISTS submission_sources (
	id BIGSERIAL PRIMARY KEY,
	submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
	source_type TEXT NOT NULL,
	source_external_id TEXT NOT NULL,
	payload_ref TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_type, source_external_id)
);

CREATE TABLE IF NOT EXISTS submission_artifacts (
	id BIGSERIAL PRIMARY KEY,
	submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
	stage TEXT NOT NULL,
	artifact_ref TEXT NOT NULL,
	artifact_version TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (submission_id, stage)
);

CREATE TABLE IF NOT EXISTS evaluations (
	id BIGSERIAL PRIMARY KEY,
	submission_id BIGINT NOT NULL UNIQUE REFERENCES submissions(id) ON DELETE CASCADE,
	score_1_10 INT NOT NULL CHECK (score_1_10 BETWEEN 1 AND 10),
	criteria_scores JSONB NOT NULL DEFAULT '{}'::jsonb,
	organizer_feedback JSONB NOT NULL DEFAULT '{}'::jsonb,
	candidate_feedback JSONB NOT NULL DEFAULT '{}'::jsonb,
	ai_likelihood DOUBLE PRECISION NOT NULL DEFAULT 0,
	ai_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS llm_runs (
	id BIGSERIAL PRIMARY KEY,
	submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	api_base TEXT NOT NULL DEFAULT '',
	chain_version TEXT NOT NULL DEFAULT '',
	spec_version TEXT NOT NULL DEFAULT '',
	response_language TEXT NOT NULL DEFAULT '',
	temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
	seed INT,
	tokens_input INT NOT NULL DEFAULT 0,
	tokens_output INT NOT NULL DEFAULT 0,
	latency_ms INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deliveries (
	id BIGSERIAL PRIMARY KEY,
	submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
	channel TEXT NOT NULL,
	status TEXT NOT NULL,
	external_message_id TEXT,
	attempts INT NOT NULL DEFAULT 0,
	last_error_code TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("op=postgres.Migrate: %w", err)
	}
	return nil
}
