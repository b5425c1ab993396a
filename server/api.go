package server

import (
	"context"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ZaguanLabs/livetl"
	"github.com/ZaguanLabs/livetl/cache"
	"github.com/ZaguanLabs/livetl/provider"
)

// ContextUserKey is the gin context key under which an external auth layer
// stores the authenticated user's ID. Requests without it are anonymous.
const ContextUserKey = "livetl.userID"

// languageCodePattern validates preference codes: bare 2-3 letter codes.
var languageCodePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}$`)

// UserLanguages persists per-user language preferences. Implementations are
// external collaborators (the platform's user profile store).
type UserLanguages interface {
	Get(ctx context.Context, userID string) (string, error)
	Set(ctx context.Context, userID, lang string) error
}

// API serves the translation HTTP boundary: POST/GET /api/translate and
// POST/GET /api/language.
type API struct {
	adapter *provider.Adapter
	store   cache.Store // hash-keyed server cache for raw text batches
	users   UserLanguages
	limiter *IPRateLimiter
	log     zerolog.Logger
}

// NewAPI creates the HTTP API.
func NewAPI(adapter *provider.Adapter, store cache.Store, users UserLanguages, limitCfg IPRateLimitConfig, log zerolog.Logger) *API {
	return &API{
		adapter: adapter,
		store:   store,
		users:   users,
		limiter: NewIPRateLimiter(limitCfg),
		log:     log,
	}
}

// Router builds the gin engine with all routes and middleware registered.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestID(), a.requestLog())

	r.POST("/api/translate", a.rateLimit(), a.handleTranslate)
	r.GET("/api/translate", a.handleHealth)
	r.POST("/api/language", a.handleSetLanguage)
	r.GET("/api/language", a.handleGetLanguage)

	return r
}

type translateRequest struct {
	Texts      []string `json:"texts"`
	TargetLang string   `json:"targetLang"`
	SourceLang string   `json:"sourceLang,omitempty"`
}

type translateResponse struct {
	Translations []string `json:"translations"`
	TargetLang   string   `json:"targetLang"`
	SourceLang   string   `json:"sourceLang,omitempty"`
}

type translateError struct {
	Error        string   `json:"error"`
	Translations []string `json:"translations"`
	Fallback     bool     `json:"fallback"`
}

func (a *API) handleTranslate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Texts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "texts is required"})
		return
	}
	if req.TargetLang == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "targetLang is required"})
		return
	}
	if len(req.Texts) > livetl.MaxRequestTexts {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch size exceeds " + strconv.Itoa(livetl.MaxRequestTexts)})
		return
	}
	target := livetl.Normalize(req.TargetLang)
	if !livetl.IsSupported(target) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported target language"})
		return
	}

	// Serve what the server cache already has; only the rest goes out.
	out := make([]string, len(req.Texts))
	var uncached []string
	var uncachedAt []int
	for i, text := range req.Texts {
		if cached, ok := a.store.Get(livetl.CacheKey(text, target)); ok {
			out[i] = cached
			continue
		}
		uncached = append(uncached, text)
		uncachedAt = append(uncachedAt, i)
	}

	if len(uncached) > 0 {
		results, err := a.adapter.TranslateBatchStrict(c.Request.Context(), uncached, req.SourceLang, target)
		if err != nil {
			a.log.Warn().Err(err).Int("batch", len(uncached)).Str("target", target).
				Msg("translate endpoint falling back to source texts")
			// Callers must still be able to read translations from an
			// error body.
			c.JSON(http.StatusBadGateway, translateError{
				Error:        "translation provider unavailable",
				Translations: req.Texts,
				Fallback:     true,
			})
			return
		}
		for i, pos := range uncachedAt {
			out[pos] = results[i]
			if results[i] != uncached[i] {
				if err := a.store.Set(livetl.CacheKey(uncached[i], target), results[i]); err != nil {
					a.log.Warn().Err(err).Msg("server cache write failed")
				}
			}
		}
	}

	c.JSON(http.StatusOK, translateResponse{
		Translations: out,
		TargetLang:   target,
		SourceLang:   req.SourceLang,
	})
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"configured": a.adapter.Configured(),
		"version":    livetl.FullVersion(),
	})
}

type languageRequest struct {
	LanguageCode string `json:"languageCode"`
}

func (a *API) handleSetLanguage(c *gin.Context) {
	var req languageRequest
	if err := c.ShouldBindJSON(&req); err != nil || !languageCodePattern.MatchString(req.LanguageCode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "languageCode must be a 2-3 letter code"})
		return
	}

	code := livetl.Normalize(req.LanguageCode)

	userID := c.GetString(ContextUserKey)
	if userID == "" || a.users == nil {
		// Local persistence on the client is authoritative; an anonymous
		// save is not an error.
		c.JSON(http.StatusOK, gin.H{"saved": false, "languageCode": code})
		return
	}

	if err := a.users.Set(c.Request.Context(), userID, code); err != nil {
		a.log.Warn().Err(err).Str("user", userID).Msg("language preference save failed")
		c.JSON(http.StatusOK, gin.H{"saved": false, "languageCode": code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved": true, "languageCode": code})
}

func (a *API) handleGetLanguage(c *gin.Context) {
	userID := c.GetString(ContextUserKey)
	if userID != "" && a.users != nil {
		if code, err := a.users.Get(c.Request.Context(), userID); err == nil && code != "" {
			c.JSON(http.StatusOK, gin.H{"languageCode": code})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"languageCode": livetl.DefaultLanguage})
}

// rateLimit is the per-IP rolling-window middleware for the translate
// endpoint.
func (a *API) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := a.limiter.Allow(c.ClientIP())
		if !ok {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// contextRequestIDKey is the gin context key for the request ID.
const contextRequestIDKey = "livetl.requestID"

// requestID tags each request with an ID, honoring one supplied by an
// upstream proxy, and echoes it in the response.
func (a *API) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLog logs each request once it completes.
func (a *API) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Debug().
			Str("requestId", c.GetString(contextRequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// MemoryUserLanguages is a map-backed UserLanguages for tests and
// single-node deployments.
type MemoryUserLanguages struct {
	mu    sync.RWMutex
	prefs map[string]string
}

// NewMemoryUserLanguages creates an empty in-memory preference store.
func NewMemoryUserLanguages() *MemoryUserLanguages {
	return &MemoryUserLanguages{prefs: make(map[string]string)}
}

func (s *MemoryUserLanguages) Get(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[userID], nil
}

func (s *MemoryUserLanguages) Set(_ context.Context, userID, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = lang
	return nil
}
