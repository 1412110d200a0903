// Package handlers contains the gin handlers of the admin HTTP surface.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewbill/keysvc/internal/application"
	"github.com/crewbill/keysvc/internal/application/dto"
	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

// KeyHandler exposes the key lifecycle admin operations.
type KeyHandler struct {
	rotation *application.RotationService
	logger   logger.Logger
}

// NewKeyHandler creates the key admin handler.
func NewKeyHandler(rotation *application.RotationService, log logger.Logger) *KeyHandler {
	return &KeyHandler{
		rotation: rotation,
		logger:   log.WithComponent("key_handler"),
	}
}

// ListKeys handles GET /api/v1/keys. Secrets are never included.
func (h *KeyHandler) ListKeys(c *gin.Context) {
	keys, err := h.rotation.ListKeys(c.Request.Context())
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, &dto.KeyListResponse{Keys: keys, Count: len(keys)})
}

// GetKey handles GET /api/v1/keys/:key_id.
func (h *KeyHandler) GetKey(c *gin.Context) {
	key, err := h.rotation.GetKey(c.Request.Context(), c.Param("key_id"))
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, key)
}

// Rotate handles POST /api/v1/keys/rotate. The body is optional; an empty
// body rotates with the configured defaults.
func (h *KeyHandler) Rotate(c *gin.Context) {
	var req dto.RotateKeyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.SendError(c, errors.ErrInvalidRequest(err))
			return
		}
	}

	result, err := h.rotation.RotateKeys(c.Request.Context(), models.RotationOptions{
		KeyLifetimeDays: req.LifetimeDays,
		CreatedBy:       req.CreatedBy,
	})
	if err != nil {
		dto.SendError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "manual rotation completed",
		logger.String("new_key_id", result.NewKey.KeyID))
	dto.SendSuccess(c, http.StatusOK, result)
}

// EmergencyRotate handles POST /api/v1/keys/emergency-rotate. A reason is
// mandatory and every pre-existing key is revoked.
func (h *KeyHandler) EmergencyRotate(c *gin.Context) {
	var req dto.EmergencyRotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.SendError(c, errors.ErrInvalidRequest(err))
		return
	}

	result, err := h.rotation.EmergencyRotation(c.Request.Context(), req.Reason, models.RotationOptions{
		KeyLifetimeDays: req.LifetimeDays,
		CreatedBy:       req.CreatedBy,
	})
	if err != nil {
		dto.SendError(c, err)
		return
	}

	h.logger.Warn(c.Request.Context(), "emergency rotation completed",
		logger.String("new_key_id", result.NewKey.KeyID),
		logger.String("reason", req.Reason),
		logger.Int64("revoked", result.RevokedCount))
	dto.SendSuccess(c, http.StatusOK, result)
}

// Revoke handles POST /api/v1/keys/:key_id/revoke. Revoking the active key
// is rejected; the caller must rotate first.
func (h *KeyHandler) Revoke(c *gin.Context) {
	var req dto.RevokeKeyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.SendError(c, errors.ErrInvalidRequest(err))
			return
		}
	}

	key, err := h.rotation.RevokeKey(c.Request.Context(), c.Param("key_id"), req.Reason)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, key)
}

// Activate handles POST /api/v1/keys/:key_id/activate, promoting a valid key
// back to active.
func (h *KeyHandler) Activate(c *gin.Context) {
	key, err := h.rotation.ActivateKey(c.Request.Context(), c.Param("key_id"))
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, key)
}

// Cleanup handles POST /api/v1/keys/cleanup, running the retention sweep on
// demand.
func (h *KeyHandler) Cleanup(c *gin.Context) {
	deleted, err := h.rotation.CleanupRevoked(c.Request.Context())
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, &dto.CleanupResponse{Deleted: deleted})
}
