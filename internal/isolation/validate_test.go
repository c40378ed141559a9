package isolation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arcfield/plugindb/internal/apperrors"
)

func TestValidateToken(t *testing.T) {
	valid := []string{
		"guild-1042",
		"550e8400-e29b-41d4-a716-446655440000",
		"A",
		"agent_7",
	}
	for _, v := range valid {
		assert.NoError(t, ValidateToken("server", v), v)
	}

	invalid := []string{
		"",
		"-leading-dash",
		"_leading_underscore",
		"has space",
		"quote'break",
		`"; DROP TABLE servers; --`,
		"way-too-long-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	for _, v := range invalid {
		err := ValidateToken("server", v)
		assert.Error(t, err, v)

		var idErr *apperrors.IdentifierError
		assert.True(t, errors.As(err, &idErr), v)
	}
}
