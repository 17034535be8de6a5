package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/auth"
	"github.com/MarcoPoloResearchLab/trainhub/internal/barcode"
	"github.com/MarcoPoloResearchLab/trainhub/internal/metrics"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/MarcoPoloResearchLab/trainhub/internal/uploads"
	"github.com/MarcoPoloResearchLab/trainhub/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	principalContextKey = "trainhub_principal"
	accessTokenQueryKey = "access_token"
	apiPrefix           = "/api/"
	indexFile           = "index.html"
)

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingUsersService   = errors.New("users service dependency required")
	errMissingTrainingSvc    = errors.New("training service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
	defaultAllowedOrigins    = []string{"*"}
	defaultAllowedHeaders    = []string{"Authorization", "Content-Type"}
	defaultAllowedMethods    = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultCORSPreflightTime = 12 * time.Hour
)

// TokenManager issues and validates session tokens.
type TokenManager interface {
	IssueToken(email, name string) (string, int64, error)
	ValidateToken(token string) (auth.Claims, error)
}

// BarcodeLookup resolves UPC codes.
type BarcodeLookup interface {
	Lookup(ctx context.Context, upc string) (barcode.Product, error)
}

type Dependencies struct {
	Tokens         TokenManager
	Users          *users.Service
	Trainings      *training.Service
	Uploads        *uploads.Store
	Barcode        BarcodeLookup
	Metrics        *metrics.Registry
	Realtime       *RealtimeDispatcher
	AllowedOrigins []string
	StaticDir      string
	Heartbeat      time.Duration
	Logger         *zap.Logger
}

// NewHTTPHandler wires the JSON API, the change feed, uploaded media and the single-page app.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Trainings == nil {
		return nil, errMissingTrainingSvc
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	registry := deps.Metrics
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	heartbeat := deps.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	handler := &httpHandler{
		tokens:    deps.Tokens,
		users:     deps.Users,
		trainings: deps.Trainings,
		uploads:   deps.Uploads,
		barcode:   deps.Barcode,
		metrics:   registry,
		realtime:  realtime,
		staticDir: strings.TrimSpace(deps.StaticDir),
		heartbeat: heartbeat,
		logger:    logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(registry.Middleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.GET("/metrics", gin.WrapH(registry.Handler()))

	api := router.Group("/api")
	api.POST("/signup", handler.handleSignup)
	api.POST("/login", handler.handleLogin)
	api.GET("/trainings", handler.handleListTrainings)
	api.GET("/training", handler.handleGetTraining)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/user", handler.handleGetUser)
	protected.POST("/user", handler.handleSaveUser)
	protected.POST("/trainings", handler.handleCreateTraining)
	protected.GET("/trainings/deleted", handler.handleListDeletedTrainings)
	protected.POST("/training/update", handler.handleUpdateTraining)
	protected.POST("/training/delete", handler.handleDeleteTraining)
	protected.POST("/training/restore", handler.handleRestoreTraining)
	protected.POST("/training/permanent-delete", handler.handlePurgeTraining)
	protected.POST("/upload-video", handler.handleUploadVideo)
	protected.POST("/upload-image", handler.handleUploadImage)
	protected.GET("/barcode-lookup", handler.handleBarcodeLookup)
	protected.GET("/events", handler.handleEvents)

	if deps.Uploads != nil {
		router.Static(strings.TrimSuffix(uploads.VideosURLPrefix, "/"), deps.Uploads.VideosDir())
		router.Static(strings.TrimSuffix(uploads.ImagesURLPrefix, "/"), deps.Uploads.ImagesDir())
	}
	router.NoRoute(handler.handleFallback)

	return router, nil
}

type httpHandler struct {
	tokens    TokenManager
	users     *users.Service
	trainings *training.Service
	uploads   *uploads.Store
	barcode   BarcodeLookup
	metrics   *metrics.Registry
	realtime  *RealtimeDispatcher
	staticDir string
	heartbeat time.Duration
	logger    *zap.Logger
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowed = append(allowed, trimmed)
		}
	}
	if len(allowed) == 0 {
		allowed = defaultAllowedOrigins
	}
	config := cors.Config{
		AllowMethods: defaultAllowedMethods,
		AllowHeaders: defaultAllowedHeaders,
		MaxAge:       defaultCORSPreflightTime,
	}
	for _, origin := range allowed {
		if origin == "*" {
			config.AllowAllOrigins = true
		}
	}
	if !config.AllowAllOrigins {
		config.AllowOrigins = allowed
	}
	return cors.New(config)
}

// authorizeRequest accepts a bearer header, or an access_token query parameter for
// event streams opened by clients that cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	} else if c.Request.Method == http.MethodGet {
		token = strings.TrimSpace(c.Query(accessTokenQueryKey))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": errInvalidAuthorization.Error(), "code": codeUnauthorized})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized", "code": codeUnauthorized})
		return
	}
	c.Set(principalContextKey, strings.ToLower(strings.TrimSpace(claims.Subject)))
	c.Next()
}

// handleFallback answers unknown API paths with a JSON 404 and every other path with the
// requested static asset or, for deep links, the single-page app's index.
func (h *httpHandler) handleFallback(c *gin.Context) {
	requestPath := c.Request.URL.Path
	if strings.HasPrefix(requestPath, apiPrefix) || h.staticDir == "" {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not found", "code": "http.not_found"})
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusMethodNotAllowed)
		return
	}
	candidate := filepath.Join(h.staticDir, filepath.FromSlash(path.Clean("/"+requestPath)))
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		c.File(candidate)
		return
	}
	c.File(filepath.Join(h.staticDir, indexFile))
}

func (h *httpHandler) principal(c *gin.Context) string {
	return c.GetString(principalContextKey)
}
