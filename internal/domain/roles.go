package domain

import (
	"fmt"
	"strings"
)

// Worker roles. Each worker role drives exactly one stage; the api role
// serves ingress and queries only.
const (
	RoleAPI            = "api"
	RoleIngestTelegram = "worker-ingest-telegram"
	RoleNormalize      = "worker-normalize"
	RoleEvaluate       = "worker-evaluate"
	RoleDeliver        = "worker-deliver"
)

// SupportedRoles lists every runtime role in startup order.
var SupportedRoles = []string{
	RoleAPI,
	RoleIngestTelegram,
	RoleNormalize,
	RoleEvaluate,
	RoleDeliver,
}

var roleStages = map[string]Stage{
	RoleIngestTelegram: StageRaw,
	RoleNormalize:      StageNormalized,
	RoleEvaluate:       StageLLMOutput,
	RoleDeliver:        StageExports,
}

// ValidateRole rejects unknown runtime roles with a helpful message.
func ValidateRole(role string) error {
	for _, supported := range SupportedRoles {
		if role == supported {
			return nil
		}
	}
	return fmt.Errorf("op=domain.ValidateRole: unsupported role %q (supported: %s): %w",
		role, strings.Join(SupportedRoles, ", "), ErrValidation)
}

// StageForRole maps a worker role to the stage it drives.
func StageForRole(role string) (Stage, bool) {
	stage, ok := roleStages[role]
	return stage, ok
}
