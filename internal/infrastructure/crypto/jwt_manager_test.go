package crypto

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

const testSecret = "qmQ2vX9cL0pR7sT4uW1yZ8aB5dE3fG6h"
const otherSecret = "zZ9yX8wV7uT6sR5qP4oN3mL2kJ1iH0gF"

type stubSource struct {
	keys []*models.SigningKey
	err  error
}

func (s *stubSource) SigningKey(ctx context.Context) (*models.SigningKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.keys[0], nil
}

func (s *stubSource) VerificationKeys(ctx context.Context) ([]*models.SigningKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.keys, nil
}

func (s *stubSource) Mode() service.KeySourceMode {
	return service.KeySourceRotation
}

func signingKeyFixture(id, secret string) *models.SigningKey {
	now := time.Now()
	return &models.SigningKey{
		KeyID:     id,
		Secret:    secret,
		Status:    constants.KeyStatusActive,
		Algorithm: constants.AlgorithmHS256,
		CreatedAt: now,
		ExpiresAt: now.Add(90 * 24 * time.Hour),
	}
}

func newTestManager(primary, fallback service.KeySource) service.TokenService {
	return NewJWTManager(primary, fallback, time.Hour, logger.NewNoopLogger(), nil)
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	key := signingKeyFixture("key-1", testSecret)
	m := newTestManager(&stubSource{keys: []*models.SigningKey{key}}, nil)
	ctx := context.Background()

	token, err := m.Generate(ctx, jwt.MapClaims{"sub": "user-42"}, models.TokenOptions{TTL: time.Hour, Issuer: "crewbill"})
	require.NoError(t, err)

	verified, err := m.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "key-1", verified.KeyID)
	assert.False(t, verified.Fallback)
	assert.Equal(t, "user-42", verified.Claims["sub"])
	assert.Equal(t, "crewbill", verified.Claims["iss"])
}

func TestVerifyAfterRotation(t *testing.T) {
	oldKey := signingKeyFixture("key-old", testSecret)
	m := newTestManager(&stubSource{keys: []*models.SigningKey{oldKey}}, nil)
	ctx := context.Background()

	token, err := m.Generate(ctx, jwt.MapClaims{"sub": "user-42"}, models.TokenOptions{TTL: time.Hour})
	require.NoError(t, err)

	// The old key is demoted but remains in the verification set, so tokens
	// signed with it stay valid.
	newKey := signingKeyFixture("key-new", otherSecret)
	rotated := newTestManager(&stubSource{keys: []*models.SigningKey{newKey, oldKey}}, nil)

	verified, err := rotated.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "key-old", verified.KeyID)
}

func TestVerifyRejectsUnknownSignature(t *testing.T) {
	m := newTestManager(&stubSource{keys: []*models.SigningKey{signingKeyFixture("key-1", testSecret)}}, nil)
	ctx := context.Background()

	token, err := m.Generate(ctx, jwt.MapClaims{"sub": "x"}, models.TokenOptions{TTL: time.Hour})
	require.NoError(t, err)

	stranger := newTestManager(&stubSource{keys: []*models.SigningKey{signingKeyFixture("key-2", otherSecret)}}, nil)
	_, err = stranger.Verify(ctx, token)
	require.Error(t, err)
	assert.Equal(t, errors.CodeSignatureInvalid, errors.CodeOf(err))
}

func TestVerifyExpiredToken(t *testing.T) {
	key := signingKeyFixture("key-1", testSecret)
	m := newTestManager(&stubSource{keys: []*models.SigningKey{key}}, nil).(*jwtManager)
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	m.now = func() time.Time { return past }
	token, err := m.Generate(ctx, jwt.MapClaims{"sub": "x"}, models.TokenOptions{TTL: time.Hour})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Verify(ctx, token)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTokenExpired, errors.CodeOf(err))
}

func TestVerifyMalformedToken(t *testing.T) {
	m := newTestManager(&stubSource{keys: []*models.SigningKey{signingKeyFixture("key-1", testSecret)}}, nil)

	_, err := m.Verify(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, errors.CodeTokenMalformed, errors.CodeOf(err))
}

func TestGenerateFallsBackToStaticSecret(t *testing.T) {
	fallback, err := NewStaticSource(testSecret, constants.AlgorithmHS256)
	require.NoError(t, err)
	broken := &stubSource{err: errors.ErrStoreUnavailable(assert.AnError)}
	m := newTestManager(broken, fallback)
	ctx := context.Background()

	token, err := m.Generate(ctx, jwt.MapClaims{"sub": "x"}, models.TokenOptions{TTL: time.Hour})
	require.NoError(t, err)

	verified, err := m.Verify(ctx, token)
	require.NoError(t, err)
	assert.True(t, verified.Fallback)
	assert.Equal(t, StaticKeyID, verified.KeyID)
}

func TestGenerateFailsWithoutFallback(t *testing.T) {
	broken := &stubSource{err: errors.ErrStoreUnavailable(assert.AnError)}
	m := newTestManager(broken, nil)

	_, err := m.Generate(context.Background(), jwt.MapClaims{"sub": "x"}, models.TokenOptions{TTL: time.Hour})
	require.Error(t, err)
	assert.Equal(t, errors.CodeStoreUnavailable, errors.CodeOf(err))
}

func TestFallbackToleranceExhausted(t *testing.T) {
	fallback, err := NewStaticSource(testSecret, constants.AlgorithmHS256)
	require.NoError(t, err)
	broken := &stubSource{err: errors.ErrStoreUnavailable(assert.AnError)}
	m := newTestManager(broken, fallback).(*jwtManager)
	ctx := context.Background()

	// Degraded since well past the tolerance window.
	m.degradedSince = time.Now().Add(-2 * time.Hour)

	_, err = m.Generate(ctx, jwt.MapClaims{"sub": "x"}, models.TokenOptions{TTL: time.Hour})
	require.Error(t, err)
	assert.Equal(t, errors.CodeFallbackExhausted, errors.CodeOf(err))

	_, err = m.Verify(ctx, "whatever")
	require.Error(t, err)
	assert.Equal(t, errors.CodeFallbackExhausted, errors.CodeOf(err))
}

func TestDegradedWindowResetsOnRecovery(t *testing.T) {
	fallback, err := NewStaticSource(testSecret, constants.AlgorithmHS256)
	require.NoError(t, err)
	healthy := &stubSource{keys: []*models.SigningKey{signingKeyFixture("key-1", testSecret)}}
	m := newTestManager(healthy, fallback).(*jwtManager)

	m.degradedSince = time.Now().Add(-30 * time.Minute)
	_, err = m.Generate(context.Background(), jwt.MapClaims{"sub": "x"}, models.TokenOptions{TTL: time.Hour})
	require.NoError(t, err)
	assert.True(t, m.degradedSince.IsZero())
}

func TestIsExpiredAndExpiration(t *testing.T) {
	key := signingKeyFixture("key-1", testSecret)
	m := newTestManager(&stubSource{keys: []*models.SigningKey{key}}, nil)
	ctx := context.Background()

	token, err := m.Generate(ctx, jwt.MapClaims{"sub": "x"}, models.TokenOptions{TTL: time.Hour})
	require.NoError(t, err)

	expired, err := m.IsExpired(token)
	require.NoError(t, err)
	assert.False(t, expired)

	exp, err := m.Expiration(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	// No exp claim means the token never expires.
	eternal, err := m.Generate(ctx, jwt.MapClaims{"sub": "x"}, models.TokenOptions{})
	require.NoError(t, err)
	expired, err = m.IsExpired(eternal)
	require.NoError(t, err)
	assert.False(t, expired)
	exp, err = m.Expiration(eternal)
	require.NoError(t, err)
	assert.True(t, exp.IsZero())
}

func TestStaticSourceRejectsWeakSecret(t *testing.T) {
	_, err := NewStaticSource("changeme", constants.AlgorithmHS256)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
