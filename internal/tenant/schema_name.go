package tenant

import (
	"regexp"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
)

// schemaNamePattern admits unquoted PostgreSQL identifiers up to the 63 byte limit.
var schemaNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateSchemaName rejects tenant ids that cannot name a schema.
func ValidateSchemaName(name string) error {
	if name == "" {
		return apperrors.Configuration("tenant id is required")
	}
	if !schemaNamePattern.MatchString(name) {
		return apperrors.Configuration("tenant id is not a valid schema name")
	}
	return nil
}
