// Package tenancy holds the tenant identity model: identifier validation,
// the per-unit-of-work tenant binding and the resolver that turns a binding
// into the namespace a unit of work must touch.
package tenancy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/erp/tenancy/internal/domain/shared"
)

// MaxIdentifierLength is PostgreSQL's NAMEDATALEN-1. Longer names are
// silently truncated by the server, which would map two tenants onto one schema.
const MaxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Errors returned by identifier validation and tenant binding
var (
	ErrInvalidIdentifier = shared.NewDomainError("INVALID_TENANT_IDENTIFIER", "invalid tenant identifier")
	ErrBlankIdentifier   = shared.NewDomainError("BLANK_TENANT_IDENTIFIER", "tenant identifier must not be blank")
	ErrNoUnitOfWork      = shared.NewDomainError("NO_UNIT_OF_WORK", "no unit of work is attached to the context")
)

// ValidateIdentifier rejects anything that is not a plain SQL identifier.
// It runs before an identifier is ever placed into a directive or DDL statement.
func ValidateIdentifier(id string) error {
	switch {
	case !identifierPattern.MatchString(id):
		return fmt.Errorf("%w: %q must match %s", ErrInvalidIdentifier, id, identifierPattern.String())
	case len(id) > MaxIdentifierLength:
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidIdentifier, id, MaxIdentifierLength)
	case strings.HasPrefix(strings.ToLower(id), "pg_"):
		return fmt.Errorf("%w: %q uses the reserved pg_ prefix", ErrInvalidIdentifier, id)
	}
	return nil
}

// IsValidIdentifier reports whether id passes ValidateIdentifier
func IsValidIdentifier(id string) bool {
	return ValidateIdentifier(id) == nil
}

// IsBlank reports whether id is empty or whitespace only
func IsBlank(id string) bool {
	return strings.TrimSpace(id) == ""
}
