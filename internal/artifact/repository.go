package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// CompatPolicy controls how strictly persisted schema versions are matched
// against the active contract.
type CompatPolicy string

// Compatibility policies. Strict requires an exact schema_version match;
// compatible accepts any version sharing the kind's family prefix (the text
// before the colon).
const (
	PolicyStrict     CompatPolicy = "strict"
	PolicyCompatible CompatPolicy = "compatible"
)

// schemaVersionByContract maps a contract version to the expected
// schema_version per artifact kind.
var schemaVersionByContract = map[string]map[string]string{
	"v1": {
		"normalized": SchemaNormalizedV1,
		"exports":    SchemaExportsV1,
	},
}

// DefaultContractVersion is the contract applied when none is configured.
const DefaultContractVersion = "v1"

// Repository is the typed artifact I/O boundary. Stage handlers rely on it
// and never perform raw JSON or storage work themselves.
type Repository interface {
	LoadNormalized(ctx context.Context, artifactRef string) (NormalizedArtifact, error)
	SaveNormalized(ctx context.Context, submissionID string, a NormalizedArtifact) (string, error)
	SaveExportRows(ctx context.Context, exportID string, rows []ExportRowArtifact) (string, error)
}

// VersionedRepository enforces the active contract version and compat policy
// over a prefix-scoped object store.
type VersionedRepository struct {
	storage         domain.StorageClient
	contractVersion string
	policy          CompatPolicy
}

// NewVersionedRepository validates the configuration and returns the facade.
func NewVersionedRepository(storage domain.StorageClient, contractVersion string, policy CompatPolicy) (*VersionedRepository, error) {
	if contractVersion == "" {
		contractVersion = DefaultContractVersion
	}
	if _, ok := schemaVersionByContract[contractVersion]; !ok {
		return nil, fmt.Errorf("op=artifact.NewVersionedRepository: unsupported contract version %q: %w", contractVersion, domain.ErrValidation)
	}
	switch policy {
	case PolicyStrict, PolicyCompatible:
	default:
		return nil, fmt.Errorf("op=artifact.NewVersionedRepository: unsupported compat policy %q: %w", policy, domain.ErrValidation)
	}
	return &VersionedRepository{storage: storage, contractVersion: contractVersion, policy: policy}, nil
}

// LoadNormalized reads, decodes, validates, and version-checks a normalized
// artifact by ref.
func (r *VersionedRepository) LoadNormalized(ctx context.Context, artifactRef string) (NormalizedArtifact, error) {
	payload, err := r.storage.GetBytes(ctx, StorageKeyFromRef(artifactRef))
	if err != nil {
		return NormalizedArtifact{}, fmt.Errorf("op=artifact.LoadNormalized: %w", err)
	}
	a, err := DecodeNormalized(payload)
	if err != nil {
		return NormalizedArtifact{}, err
	}
	if err := ValidateNormalized(a); err != nil {
		return NormalizedArtifact{}, err
	}
	if err := r.checkSchema("normalized", a.SchemaVersion); err != nil {
		return NormalizedArtifact{}, err
	}
	return a, nil
}

// SaveNormalized validates first, then writes under normalized/<id>.json.
// The returned ref is the bare storage key so downstream readers can load it
// regardless of the store's display scheme.
func (r *VersionedRepository) SaveNormalized(ctx context.Context, submissionID string, a NormalizedArtifact) (string, error) {
	if err := ValidateNormalized(a); err != nil {
		return "", err
	}
	if err := r.checkSchema("normalized", a.SchemaVersion); err != nil {
		return "", err
	}
	payload, err := EncodeNormalized(a)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("normalized/%s.json", submissionID)
	if _, err := r.storage.PutBytes(ctx, key, payload); err != nil {
		return "", fmt.Errorf("op=artifact.SaveNormalized: %w", err)
	}
	return key, nil
}

// SaveExportRows validates each row, encodes CSV, and writes under
// exports/<export_id>.csv. Returns the storage ref.
func (r *VersionedRepository) SaveExportRows(ctx context.Context, exportID string, rows []ExportRowArtifact) (string, error) {
	for i, row := range rows {
		if err := ValidateExportRow(row); err != nil {
			return "", fmt.Errorf("op=artifact.SaveExportRows: row %d: %w", i, err)
		}
		if err := r.checkSchema("exports", row.SchemaVersion); err != nil {
			return "", fmt.Errorf("op=artifact.SaveExportRows: row %d: %w", i, err)
		}
	}
	payload, err := EncodeExportRows(rows)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("exports/%s.csv", exportID)
	ref, err := r.storage.PutBytes(ctx, key, payload)
	if err != nil {
		return "", fmt.Errorf("op=artifact.SaveExportRows: %w", err)
	}
	return ref, nil
}

func (r *VersionedRepository) checkSchema(kind, actual string) error {
	expected := schemaVersionByContract[r.contractVersion][kind]
	if actual == expected {
		return nil
	}
	if r.policy == PolicyCompatible {
		if schemaFamily(expected) == schemaFamily(actual) {
			return nil
		}
	}
	return fmt.Errorf("op=artifact.checkSchema: schema mismatch for %s: expected %s, got %s: %w",
		kind, expected, actual, domain.ErrValidation)
}

func schemaFamily(version string) string {
	if i := strings.Index(version, ":"); i >= 0 {
		return version[:i]
	}
	return version
}

// StorageKeyFromRef strips a scheme:// display prefix from a persisted ref.
// Bare keys pass through unchanged, so both spellings round-trip.
func StorageKeyFromRef(ref string) string {
	if i := strings.Index(ref, "://"); i >= 0 {
		return ref[i+len("://"):]
	}
	return ref
}
