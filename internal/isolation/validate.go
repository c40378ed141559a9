package isolation

import (
	"regexp"

	"github.com/arcfield/plugindb/internal/apperrors"
)

// tokenPattern is the allow-list for server/agent/entity identifiers.
// UUIDs pass; anything that could escape a generated statement does not.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateToken checks an externally supplied identifier before it is used
// anywhere near generated SQL
func ValidateToken(kind, value string) error {
	if !tokenPattern.MatchString(value) {
		return apperrors.NewIdentifierError(kind, value)
	}
	return nil
}
