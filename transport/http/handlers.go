package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/sepha/core"
	"github.com/layer-3/sepha/service"
)

const (
	validStatus          = "valid"
	upstreamFailedStatus = "upstream profile lookup failed"
)

// InitResponse is returned by the init endpoint
type InitResponse struct {
	PublicToken string `json:"public_token"`
	Secret      string `json:"secret"`
}

// AuthenticateResponse is returned by the authenticate endpoint. Token is
// null unless Valid is "valid".
type AuthenticateResponse struct {
	Valid string  `json:"valid"`
	Token *string `json:"token"`
}

// VerifyResponse is returned by the verify endpoint
type VerifyResponse struct {
	Verify bool `json:"verify"`
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// Index is a liveness probe
func (h *AuthHandlers) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Init starts the authentication process for a plug.dj user id
func (h *AuthHandlers) Init(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	res, err := h.authService.Init(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "auth_init_failed_creating_jwt"})
		return
	}

	c.JSON(http.StatusOK, InitResponse{
		PublicToken: res.PublicToken,
		Secret:      res.Secret,
	})
}

// Authenticate exchanges a challenge token for a session token once the
// user's blurb matches the challenge
func (h *AuthHandlers) Authenticate(c *gin.Context) {
	secret, err := readToken(c, "secret")
	if err != nil {
		writeBodyError(c, err)
		return
	}

	token, err := h.authService.Authenticate(c.Request.Context(), secret)
	if err != nil {
		statusCode := http.StatusOK
		reason := "auth_authenticate_failed_creating_jwt"

		switch {
		case errors.Is(err, core.ErrBlurbMismatch):
			reason = core.ErrBlurbMismatch.Error()
		case core.IsTokenError(err):
			reason = tokenErrorReason(err)
		case errors.Is(err, core.ErrUpstream):
			statusCode = http.StatusBadGateway
			reason = upstreamFailedStatus
		default:
			statusCode = http.StatusInternalServerError
		}

		c.JSON(statusCode, AuthenticateResponse{Valid: reason})
		return
	}

	c.JSON(http.StatusOK, AuthenticateResponse{Valid: validStatus, Token: &token})
}

// Verify reports whether an authentication token is valid
func (h *AuthHandlers) Verify(c *gin.Context) {
	token, err := readToken(c, "token")
	if err != nil {
		writeBodyError(c, err)
		return
	}

	if !h.authService.Verify(c.Request.Context(), token) {
		c.JSON(http.StatusForbidden, VerifyResponse{Verify: false})
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{Verify: true})
}

// tokenErrorReason returns the description of the token error class
func tokenErrorReason(err error) string {
	for _, target := range []error{
		core.ErrTokenExpired,
		core.ErrInvalidSignature,
		core.ErrMalformedToken,
		core.ErrInvalidSubject,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return core.ErrInvalidToken.Error()
}
