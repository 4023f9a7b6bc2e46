package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/driftbyte/pixvault/backend/internal/vault"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	usernameContextKey  = "pixvault_username"
	requestIDContextKey = "pixvault_request_id"
	requestIDHeader     = "X-Request-ID"

	// maxUploadBytes bounds the accepted multipart file size; larger
	// bodies are rejected outright rather than truncated.
	maxUploadBytes = 64 << 20
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingVaultService  = errors.New("vault service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokenManager issues and validates session tokens for usernames.
type SessionTokenManager interface {
	IssueSessionToken(username string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP layer to its collaborators.
type Dependencies struct {
	TokenManager SessionTokenManager
	Vault        *vault.Service
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router for the API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Vault == nil {
		return nil, errMissingVaultService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware)
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens: deps.TokenManager,
		vault:  deps.Vault,
		logger: logger,
	}

	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/images", handler.handleUpload)
	protected.GET("/images", handler.handleListImages)
	protected.POST("/images/cleanup", handler.handleCleanup)

	return router, nil
}

type httpHandler struct {
	tokens SessionTokenManager
	vault  *vault.Service
	logger *zap.Logger
}

func requestIDMiddleware(c *gin.Context) {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	c.Writer.Header().Set(requestIDHeader, requestID)
	c.Next()
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Username) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ok, err := h.vault.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.logger.Error("authentication errored", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication_failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(request.Username)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	// Login also reconciles the user's ledger against live storage;
	// a failed reconcile never blocks the login itself.
	if err := h.vault.Cleanup(c.Request.Context(), request.Username); err != nil {
		h.logger.Warn("login-time cleanup failed",
			zap.String("username", request.Username),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Username:    request.Username,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		h.logger.Info("authorization header rejected", zap.Error(errInvalidAuthorization))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	username, err := h.tokens.ValidateToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(usernameContextKey, username)
	c.Next()
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	username := c.GetString(usernameContextKey)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}

	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not open file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}

	outcome, err := h.vault.UploadImage(c.Request.Context(), username, data, fileHeader.Filename)
	if err != nil {
		h.logger.Error("upload errored",
			zap.String("username", username),
			zap.String("filename", fileHeader.Filename),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}

	c.JSON(statusForOutcome(outcome), outcome)
}

func statusForOutcome(outcome vault.Outcome) int {
	switch outcome.Kind {
	case vault.OutcomeSuccess:
		return http.StatusCreated
	case vault.OutcomeDuplicate:
		return http.StatusOK
	case vault.OutcomeInvalidFormat:
		return http.StatusBadRequest
	case vault.OutcomeProcessingFailed:
		return http.StatusUnprocessableEntity
	case vault.OutcomeUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) handleListImages(c *gin.Context) {
	username := c.GetString(usernameContextKey)

	images, err := h.vault.GetUserImages(c.Request.Context(), username)
	if err != nil {
		h.logger.Error("listing images failed",
			zap.String("username", username),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if images == nil {
		images = []vault.Image{}
	}

	c.JSON(http.StatusOK, gin.H{"images": images})
}

func (h *httpHandler) handleCleanup(c *gin.Context) {
	username := c.GetString(usernameContextKey)

	if err := h.vault.Cleanup(c.Request.Context(), username); err != nil {
		h.logger.Error("cleanup failed",
			zap.String("username", username),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup_failed"})
		return
	}

	c.Status(http.StatusNoContent)
}
