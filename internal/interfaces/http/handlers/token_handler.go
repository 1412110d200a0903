package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/crewbill/keysvc/internal/application/dto"
	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

// TokenHandler exposes token signing and verification backed by the rotation
// subsystem.
type TokenHandler struct {
	tokens service.TokenService
	logger logger.Logger
}

// NewTokenHandler creates the token handler.
func NewTokenHandler(tokens service.TokenService, log logger.Logger) *TokenHandler {
	return &TokenHandler{
		tokens: tokens,
		logger: log.WithComponent("token_handler"),
	}
}

// Generate handles POST /api/v1/tokens.
func (h *TokenHandler) Generate(c *gin.Context) {
	var req dto.GenerateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.SendError(c, errors.ErrInvalidRequest(err))
		return
	}

	token, err := h.tokens.Generate(c.Request.Context(), jwt.MapClaims(req.Claims), models.TokenOptions{
		TTL:    time.Duration(req.TTLSeconds) * time.Second,
		Issuer: req.Issuer,
	})
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, &dto.TokenResponse{Token: token})
}

// Verify handles POST /api/v1/tokens/verify.
func (h *TokenHandler) Verify(c *gin.Context) {
	var req dto.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.SendError(c, errors.ErrInvalidRequest(err))
		return
	}

	verified, err := h.tokens.Verify(c.Request.Context(), req.Token)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, &dto.VerifyTokenResponse{
		Valid:    true,
		KeyID:    verified.KeyID,
		Fallback: verified.Fallback,
		Claims:   verified.Claims,
	})
}
