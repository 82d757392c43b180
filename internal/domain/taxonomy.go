package domain

// ErrorCode is the canonical error vocabulary persisted in last_error_code.
type ErrorCode string

// Canonical error codes.
const (
	ErrorCodeValidation              ErrorCode = "validation_error"
	ErrorCodeUnsupportedFormat       ErrorCode = "unsupported_format"
	ErrorCodeTelegramUpdateInvalid   ErrorCode = "telegram_update_invalid"
	ErrorCodeTelegramFileFetchFailed ErrorCode = "telegram_file_fetch_failed"
	ErrorCodeArtifactMissing         ErrorCode = "artifact_missing"
	ErrorCodeLLMProviderUnavailable  ErrorCode = "llm_provider_unavailable"
	ErrorCodeSchemaValidationFailed  ErrorCode = "schema_validation_failed"
	ErrorCodeDeliveryTransportFailed ErrorCode = "delivery_transport_failed"
	ErrorCodeInternal                ErrorCode = "internal_error"
)

// ErrorCodeLeaseExpired is written by the reclaimer when an expired claim is
// routed back to the retry path. It is operational, not stage-emitted, and is
// therefore outside the per-stage allowlists.
const ErrorCodeLeaseExpired ErrorCode = "lease_expired"

// RetryClassification tells the finalize path whether an error code keeps the
// submission on the retry path or routes it to a terminal failed state.
type RetryClassification string

// Retry classifications.
const (
	RetryRecoverable RetryClassification = "recoverable"
	RetryTerminal    RetryClassification = "terminal"
)

var canonicalErrorCodes = map[ErrorCode]struct{}{
	ErrorCodeValidation:              {},
	ErrorCodeUnsupportedFormat:       {},
	ErrorCodeTelegramUpdateInvalid:   {},
	ErrorCodeTelegramFileFetchFailed: {},
	ErrorCodeArtifactMissing:         {},
	ErrorCodeLLMProviderUnavailable:  {},
	ErrorCodeSchemaValidationFailed:  {},
	ErrorCodeDeliveryTransportFailed: {},
	ErrorCodeInternal:                {},
}

var recoverableErrorCodes = map[ErrorCode]struct{}{
	ErrorCodeTelegramFileFetchFailed: {},
	ErrorCodeArtifactMissing:         {},
	ErrorCodeLLMProviderUnavailable:  {},
	ErrorCodeDeliveryTransportFailed: {},
	ErrorCodeInternal:                {},
}

// stageErrorAllowlist scopes which codes each stage may persist. Codes outside
// the stage allowlist are normalized to internal_error at the persistence
// boundary so last_error_code stays stable even for misbehaving handlers.
var stageErrorAllowlist = map[Stage]map[ErrorCode]struct{}{
	StageRaw: {
		ErrorCodeTelegramUpdateInvalid:   {},
		ErrorCodeTelegramFileFetchFailed: {},
		ErrorCodeValidation:              {},
		ErrorCodeInternal:                {},
	},
	StageNormalized: {
		ErrorCodeUnsupportedFormat:      {},
		ErrorCodeArtifactMissing:        {},
		ErrorCodeSchemaValidationFailed: {},
		ErrorCodeValidation:             {},
		ErrorCodeInternal:               {},
	},
	StageLLMOutput: {
		ErrorCodeArtifactMissing:        {},
		ErrorCodeLLMProviderUnavailable: {},
		ErrorCodeSchemaValidationFailed: {},
		ErrorCodeValidation:             {},
		ErrorCodeInternal:               {},
	},
	StageExports: {
		ErrorCodeArtifactMissing:         {},
		ErrorCodeDeliveryTransportFailed: {},
		ErrorCodeSchemaValidationFailed:  {},
		ErrorCodeValidation:              {},
		ErrorCodeInternal:                {},
	},
}

// IsCanonicalErrorCode reports whether code belongs to the canonical set.
func IsCanonicalErrorCode(code ErrorCode) bool {
	_, ok := canonicalErrorCodes[code]
	return ok
}

// ClassifyError maps a canonical code to its retry classification.
func ClassifyError(code ErrorCode) RetryClassification {
	if _, ok := recoverableErrorCodes[code]; ok {
		return RetryRecoverable
	}
	return RetryTerminal
}

// ResolveStageError normalizes a code against the stage allowlist. Anything
// outside the allowlist or the canonical set becomes internal_error.
func ResolveStageError(stage Stage, code ErrorCode) ErrorCode {
	allowed, ok := stageErrorAllowlist[stage]
	if !ok {
		return ErrorCodeInternal
	}
	if _, ok := allowed[code]; ok && IsCanonicalErrorCode(code) {
		return code
	}
	return ErrorCodeInternal
}
