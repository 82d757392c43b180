package handlers

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

const defaultIngestFileName = "submission.bin"

// IngestTelegram fetches the webhook's file payload and stores it as the raw
// artifact. A webhook update that never named a file is malformed and
// terminal; a fetch failure is transient and retries.
func (d Deps) IngestTelegram(ctx context.Context, claim domain.WorkItemClaim) domain.ProcessResult {
	source, err := d.submissionSource(ctx, claim.SubmissionID)
	if err != nil {
		return failure(domain.ErrorCodeInternal, "resolve source: %v", err)
	}
	if source.SourceType != domain.SourceTypeTelegramWebhook {
		return failure(domain.ErrorCodeTelegramUpdateInvalid,
			"submission source is %s, not a telegram webhook", source.SourceType)
	}

	fileID, _ := source.Metadata["file_id"].(string)
	if fileID == "" {
		return failure(domain.ErrorCodeTelegramUpdateInvalid, "webhook update carries no file_id")
	}
	fileName, _ := source.Metadata["file_name"].(string)
	if fileName == "" {
		fileName = defaultIngestFileName
	}

	payload, err := d.Telegram.GetFileBytes(ctx, fileID)
	if err != nil {
		return failure(domain.ErrorCodeTelegramFileFetchFailed, "fetch file %s: %v", fileID, err)
	}

	key := fmt.Sprintf("raw/%s/%s", claim.SubmissionID, fileName)
	ref, err := d.Storage.PutBytes(ctx, key, payload)
	if err != nil {
		return failure(domain.ErrorCodeInternal, "store raw payload: %v", err)
	}

	return domain.ProcessResult{
		Success:     true,
		Detail:      fmt.Sprintf("stored %d bytes as %s", len(payload), key),
		ArtifactRef: ref,
	}
}
