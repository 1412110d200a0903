package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
)

// secretByteLength yields 64 base64 characters, double the minimum.
const secretByteLength = 48

// weakSecrets are placeholder values that deployment environments ship with
// and that must never become real key material.
var weakSecrets = map[string]struct{}{
	"secret":                           {},
	"password":                         {},
	"changeme":                         {},
	"change-me":                        {},
	"default":                          {},
	"development":                      {},
	"dev-secret":                       {},
	"test":                             {},
	"insecure":                         {},
	"00000000000000000000000000000000": {},
}

// GenerateSecret produces cryptographically random secret material.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.ErrInternal("failed to generate secret material", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidateSecret enforces the minimum-length and deny-list checks applied to
// any externally supplied secret.
func ValidateSecret(secret string) error {
	if len(secret) < constants.MinSecretLength {
		return errors.ErrWeakSecret(fmt.Sprintf("shorter than %d characters", constants.MinSecretLength))
	}
	if _, bad := weakSecrets[strings.ToLower(secret)]; bad {
		return errors.ErrWeakSecret("matches a known placeholder value")
	}
	if strings.Count(secret, string(secret[0])) == len(secret) {
		return errors.ErrWeakSecret("single repeated character")
	}
	return nil
}

// ResolveBootstrapSecret picks the material for the very first key: the
// deployment-provided value when it passes validation, a random secret
// otherwise. The bool reports whether the provided value was used, so the
// caller can log which path was taken.
func ResolveBootstrapSecret(provided string) (string, bool, error) {
	if provided != "" && ValidateSecret(provided) == nil {
		return provided, true, nil
	}
	secret, err := GenerateSecret()
	return secret, false, err
}
