package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want RetryClassification
	}{
		{ErrorCodeTelegramFileFetchFailed, RetryRecoverable},
		{ErrorCodeArtifactMissing, RetryRecoverable},
		{ErrorCodeLLMProviderUnavailable, RetryRecoverable},
		{ErrorCodeDeliveryTransportFailed, RetryRecoverable},
		{ErrorCodeInternal, RetryRecoverable},
		{ErrorCodeValidation, RetryTerminal},
		{ErrorCodeUnsupportedFormat, RetryTerminal},
		{ErrorCodeTelegramUpdateInvalid, RetryTerminal},
		{ErrorCodeSchemaValidationFailed, RetryTerminal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.code))
		})
	}
}

func TestResolveStageError(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		code  ErrorCode
		want  ErrorCode
	}{
		{"allowed for stage", StageRaw, ErrorCodeTelegramUpdateInvalid, ErrorCodeTelegramUpdateInvalid},
		{"allowed for normalize", StageNormalized, ErrorCodeUnsupportedFormat, ErrorCodeUnsupportedFormat},
		{"outside stage allowlist", StageNormalized, ErrorCodeTelegramUpdateInvalid, ErrorCodeInternal},
		{"outside canonical set", StageLLMOutput, ErrorCode("rate_limited"), ErrorCodeInternal},
		{"unknown stage", Stage("unknown"), ErrorCodeValidation, ErrorCodeInternal},
		{"lease_expired is operational", StageExports, ErrorCodeLeaseExpired, ErrorCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveStageError(tt.stage, tt.code))
		})
	}
}

func TestIsCanonicalErrorCode(t *testing.T) {
	assert.True(t, IsCanonicalErrorCode(ErrorCodeInternal))
	assert.True(t, IsCanonicalErrorCode(ErrorCodeSchemaValidationFailed))
	assert.False(t, IsCanonicalErrorCode(ErrorCodeLeaseExpired))
	assert.False(t, IsCanonicalErrorCode(ErrorCode("")))
}

// Every stage allowlist must be a subset of the canonical set.
func TestStageAllowlistsAreCanonical(t *testing.T) {
	for stage, allowed := range stageErrorAllowlist {
		for code := range allowed {
			assert.True(t, IsCanonicalErrorCode(code), "stage %s code %s", stage, code)
		}
	}
}
