package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
)

func TestGenerateSecret(t *testing.T) {
	first, err := GenerateSecret()
	require.NoError(t, err)
	second, err := GenerateSecret()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(first), constants.MinSecretLength)
	assert.NotEqual(t, first, second)
	assert.NoError(t, ValidateSecret(first))
}

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		wantOK bool
	}{
		{"strong random", "qmQ2vX9cL0pR7sT4uW1yZ8aB5dE3fG6h", true},
		{"too short", "tooshort", false},
		{"placeholder", "00000000000000000000000000000000", false},
		{"single repeated character", strings.Repeat("a", 40), false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err))
			}
		})
	}
}

func TestResolveBootstrapSecret(t *testing.T) {
	strong := "qmQ2vX9cL0pR7sT4uW1yZ8aB5dE3fG6h"
	secret, used, err := ResolveBootstrapSecret(strong)
	require.NoError(t, err)
	assert.True(t, used)
	assert.Equal(t, strong, secret)

	secret, used, err = ResolveBootstrapSecret("changeme")
	require.NoError(t, err)
	assert.False(t, used)
	assert.NotEqual(t, "changeme", secret)
	assert.NoError(t, ValidateSecret(secret))

	secret, used, err = ResolveBootstrapSecret("")
	require.NoError(t, err)
	assert.False(t, used)
	assert.NoError(t, ValidateSecret(secret))
}
