package domain

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Public identifiers carry a kind prefix plus a 26-char lexicographic ULID.
// The internal integer id never leaves the repository; public ids are the
// only externally visible handles.

func newPublicID(prefix string) string {
	return prefix + "_" + ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewCandidatePublicID allocates a cand_ public id.
func NewCandidatePublicID() string { return newPublicID("cand") }

// NewAssignmentPublicID allocates an asg_ public id.
func NewAssignmentPublicID() string { return newPublicID("asg") }

// NewSubmissionPublicID allocates a sub_ public id.
func NewSubmissionPublicID() string { return newPublicID("sub") }

// NewExportPublicID allocates an exp_ public id.
func NewExportPublicID() string { return newPublicID("exp") }

// HasPublicIDPrefix reports whether id carries the given kind prefix.
func HasPublicIDPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_") && len(id) == len(prefix)+1+ulid.EncodedSize
}
