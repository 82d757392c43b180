package postgres

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The INSERT ... SELECT must supply one expression per target column and bind
// every placeholder, or Postgres rejects the statement at parse time.
func TestInsertSubmissionStatementShape(t *testing.T) {
	stmt := insertSubmissionSQL

	open := strings.Index(stmt, "(")
	closing := strings.Index(stmt, ")")
	require.Greater(t, closing, open)
	columns := strings.Split(stmt[open+1:closing], ",")

	sel := strings.Index(stmt, "SELECT")
	from := strings.Index(stmt, "FROM")
	require.Greater(t, from, sel)
	exprs := strings.Split(stmt[sel+len("SELECT"):from], ",")

	assert.Len(t, exprs, len(columns))

	placeholders := regexp.MustCompile(`\$\d+`).FindAllString(stmt, -1)
	assert.ElementsMatch(t, []string{"$1", "$2", "$3", "$4"}, placeholders)

	assert.Contains(t, stmt, "RETURNING id")
}
