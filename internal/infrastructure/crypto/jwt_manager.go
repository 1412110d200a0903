package crypto

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/internal/infrastructure/monitoring"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

var signingMethods = map[constants.SigningAlgorithm]jwt.SigningMethod{
	constants.AlgorithmHS256: jwt.SigningMethodHS256,
	constants.AlgorithmHS384: jwt.SigningMethodHS384,
	constants.AlgorithmHS512: jwt.SigningMethodHS512,
}

var validMethodNames = []string{"HS256", "HS384", "HS512"}

type jwtManager struct {
	primary  service.KeySource
	fallback service.KeySource

	// tolerance bounds how long the static fallback keeps the service up
	// once the rotation subsystem fails. Past it, degraded operation becomes
	// a hard failure instead of a silent security downgrade.
	tolerance time.Duration

	logger  logger.Logger
	metrics *monitoring.Metrics
	parser  *jwt.Parser

	mu            sync.Mutex
	degradedSince time.Time

	now func() time.Time
}

// NewJWTManager builds the token service over a primary (rotation-backed) key
// source and an optional static fallback source. Passing a nil fallback
// disables degraded operation entirely.
func NewJWTManager(primary, fallback service.KeySource, tolerance time.Duration, log logger.Logger, metrics *monitoring.Metrics) service.TokenService {
	if tolerance <= 0 {
		tolerance = constants.DefaultFallbackTolerance
	}
	return &jwtManager{
		primary:   primary,
		fallback:  fallback,
		tolerance: tolerance,
		logger:    log.WithComponent("token_service"),
		metrics:   metrics,
		parser:    jwt.NewParser(jwt.WithValidMethods(validMethodNames)),
		now:       time.Now,
	}
}

// Generate signs the claims with the current active key, embedding the key id
// in the kid header. When the rotation subsystem is unavailable it signs with
// the static fallback secret inside the tolerance window.
func (m *jwtManager) Generate(ctx context.Context, claims jwt.MapClaims, opts models.TokenOptions) (string, error) {
	start := m.now()

	key, err := m.primary.SigningKey(ctx)
	source := m.primary
	if err != nil {
		if m.fallback == nil {
			m.metrics.RecordTokenOperation("sign", string(m.primary.Mode()), "error", m.now().Sub(start))
			return "", err
		}
		if degradedErr := m.enterDegraded(ctx, err); degradedErr != nil {
			m.metrics.RecordTokenOperation("sign", string(service.KeySourceStatic), "exhausted", m.now().Sub(start))
			return "", degradedErr
		}
		source = m.fallback
		key, err = source.SigningKey(ctx)
		if err != nil {
			return "", err
		}
	} else {
		m.exitDegraded(ctx)
	}

	signed, err := m.sign(key, claims, opts)
	if err != nil {
		m.metrics.RecordTokenOperation("sign", string(source.Mode()), "error", m.now().Sub(start))
		return "", err
	}
	m.metrics.RecordTokenOperation("sign", string(source.Mode()), "success", m.now().Sub(start))
	return signed, nil
}

func (m *jwtManager) sign(key *models.SigningKey, claims jwt.MapClaims, opts models.TokenOptions) (string, error) {
	method, ok := signingMethods[key.Algorithm]
	if !ok {
		return "", errors.ErrInternal("unsupported signing algorithm", nil).
			WithMetadata("algorithm", string(key.Algorithm))
	}

	now := m.now()
	merged := jwt.MapClaims{}
	for k, v := range claims {
		merged[k] = v
	}
	merged["iat"] = jwt.NewNumericDate(now)
	if opts.TTL > 0 {
		merged["exp"] = jwt.NewNumericDate(now.Add(opts.TTL))
	}
	if opts.Issuer != "" {
		merged["iss"] = opts.Issuer
	}

	token := jwt.NewWithClaims(method, merged)
	token.Header["kid"] = key.KeyID

	signed, err := token.SignedString([]byte(key.Secret))
	if err != nil {
		return "", errors.ErrInternal("failed to sign token", err)
	}
	return signed, nil
}

// Verify checks the token against the key named by its kid header first, then
// against every remaining valid key in most-recently-activated order. When
// the key set itself cannot be loaded it verifies against the static fallback
// secret and tags the result so callers can apply reduced trust.
func (m *jwtManager) Verify(ctx context.Context, tokenString string) (*models.VerifiedToken, error) {
	start := m.now()

	keys, err := m.primary.VerificationKeys(ctx)
	if err != nil {
		if m.fallback == nil {
			m.metrics.RecordTokenOperation("verify", string(m.primary.Mode()), "error", m.now().Sub(start))
			return nil, err
		}
		if degradedErr := m.enterDegraded(ctx, err); degradedErr != nil {
			m.metrics.RecordTokenOperation("verify", string(service.KeySourceStatic), "exhausted", m.now().Sub(start))
			return nil, degradedErr
		}
		keys, err = m.fallback.VerificationKeys(ctx)
		if err != nil {
			return nil, err
		}
		verified, verr := m.verifyAgainst(tokenString, keys)
		if verr != nil {
			m.metrics.RecordTokenOperation("verify", string(service.KeySourceStatic), "error", m.now().Sub(start))
			return nil, verr
		}
		verified.Fallback = true
		m.logger.Warn(ctx, "token verified against static fallback secret",
			logger.String("key_id", verified.KeyID))
		m.metrics.RecordTokenOperation("verify", string(service.KeySourceStatic), "success", m.now().Sub(start))
		return verified, nil
	}
	m.exitDegraded(ctx)

	verified, err := m.verifyAgainst(tokenString, keys)
	if err != nil {
		m.metrics.RecordTokenOperation("verify", string(m.primary.Mode()), "error", m.now().Sub(start))
		return nil, err
	}
	m.metrics.RecordTokenOperation("verify", string(m.primary.Mode()), "success", m.now().Sub(start))
	return verified, nil
}

func (m *jwtManager) verifyAgainst(tokenString string, keys []*models.SigningKey) (*models.VerifiedToken, error) {
	if len(keys) == 0 {
		return nil, errors.ErrNoActiveKey()
	}

	ordered := orderByKid(tokenString, keys, m.parser)

	var expired bool
	for _, key := range ordered {
		token, err := m.parser.ParseWithClaims(tokenString, jwt.MapClaims{}, func(*jwt.Token) (interface{}, error) {
			return []byte(key.Secret), nil
		})
		if err == nil && token.Valid {
			return &models.VerifiedToken{
				Claims: token.Claims.(jwt.MapClaims),
				KeyID:  key.KeyID,
			}, nil
		}
		switch {
		case stderrors.Is(err, jwt.ErrTokenExpired):
			// Signature matched this key; only the exp claim failed.
			expired = true
		case stderrors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.ErrTokenMalformed(err)
		}
	}
	if expired {
		return nil, errors.ErrTokenExpired()
	}
	return nil, errors.ErrSignatureInvalid()
}

// orderByKid moves the key named by the token's kid header to the front.
// Unknown or absent kids leave the most-recently-activated order untouched.
func orderByKid(tokenString string, keys []*models.SigningKey, parser *jwt.Parser) []*models.SigningKey {
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return keys
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return keys
	}
	for i, key := range keys {
		if key.KeyID == kid && i > 0 {
			ordered := make([]*models.SigningKey, 0, len(keys))
			ordered = append(ordered, key)
			ordered = append(ordered, keys[:i]...)
			ordered = append(ordered, keys[i+1:]...)
			return ordered
		}
	}
	return keys
}

// IsExpired inspects only the token's own exp claim. Tokens without an exp
// claim never expire.
func (m *jwtManager) IsExpired(tokenString string) (bool, error) {
	exp, err := m.Expiration(tokenString)
	if err != nil {
		return false, err
	}
	if exp.IsZero() {
		return false, nil
	}
	return m.now().After(exp), nil
}

// Expiration returns the token's exp claim without verifying the signature.
// The zero time means the token carries no exp claim.
func (m *jwtManager) Expiration(tokenString string) (time.Time, error) {
	token, _, err := m.parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, errors.ErrTokenMalformed(err)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.ErrTokenMalformed(err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

func (m *jwtManager) enterDegraded(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.degradedSince.IsZero() {
		m.degradedSince = now
		m.metrics.SetDegradedMode(true)
		m.logger.Warn(ctx, "rotation subsystem unavailable, entering static fallback mode",
			logger.Err(cause),
			logger.Duration("tolerance", m.tolerance))
	}
	if now.Sub(m.degradedSince) > m.tolerance {
		return errors.ErrFallbackExhausted().WithCause(cause)
	}
	return nil
}

func (m *jwtManager) exitDegraded(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.degradedSince.IsZero() {
		m.metrics.SetDegradedMode(false)
		m.logger.Info(ctx, "rotation subsystem recovered, leaving static fallback mode",
			logger.Duration("degraded_for", m.now().Sub(m.degradedSince)))
		m.degradedSince = time.Time{}
	}
}

var _ service.TokenService = (*jwtManager)(nil)
