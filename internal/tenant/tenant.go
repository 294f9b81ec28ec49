// Package tenant provides tenant identifier validation.
//
// Tenant IDs become filesystem path components in the vector store, so
// validation is fail-closed: anything that is not a plain identifier is
// rejected before it reaches the storage layer.
package tenant

import (
	"errors"
	"regexp"
)

// ErrInvalidTenantID is returned when a tenant identifier fails validation.
var ErrInvalidTenantID = errors.New("invalid tenant ID")

// maxIDLength bounds tenant identifiers.
const maxIDLength = 64

// idPattern matches lowercase alphanumeric identifiers with hyphens and
// underscores, starting with an alphanumeric character.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateID checks that id is a safe tenant identifier.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLength {
		return ErrInvalidTenantID
	}
	if !idPattern.MatchString(id) {
		return ErrInvalidTenantID
	}
	return nil
}
