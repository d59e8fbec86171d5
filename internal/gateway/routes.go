package gateway

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/auth"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/cache"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/config"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/ratelimit"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/usage"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/vault"

	// Register the built-in provider adapters.
	_ "github.com/abhishek-genailytics/strataAI-sub000/internal/provider/anthropic"
	_ "github.com/abhishek-genailytics/strataAI-sub000/internal/provider/openai"
)

// Server aggregates the gateway's subsystems and registers its routes.
type Server struct {
	cfg           *config.Config
	authenticator *auth.Authenticator
	credentials   *CredentialService
	chat          *ChatHandler
	models        *ModelsHandler
	system        *SystemHandler
	cache         *cache.Cache
	limiter       *ratelimit.Manager
	windows       ratelimit.Windows
}

// NewServer wires the handler graph. The redis client may be nil, in
// which case counters and cache entries stay in process memory.
func NewServer(cfg *config.Config, conn *gorm.DB, rdb *redis.Client, v *vault.Vault) *Server {
	validator := vault.NewValidator(nil)
	credentials := NewCredentialService(conn, v, validator)
	recorder := usage.NewRecorder(conn)
	limiter := ratelimit.NewManager(rdb, cfg.Redis.Prefix, nil)

	var store cache.Store
	if rdb != nil {
		store = cache.NewRedisStore(rdb, cfg.Redis.Prefix)
	} else {
		store = cache.NewMemoryStore()
	}
	policy := cache.NewPolicy(cfg.Cache.DefaultTTL.Std())
	for prefix, ttl := range cfg.Cache.EndpointTTLs {
		policy.SetTTL(prefix, ttl.Std())
	}
	responseCache := cache.New(store, policy)

	windows := ratelimit.Windows{
		Burst:       cfg.RateLimit.Burst,
		BurstWindow: cfg.RateLimit.BurstWindow.Std(),
		PerMinute:   cfg.RateLimit.PerMinute,
		PerHour:     cfg.RateLimit.PerHour,
	}

	return &Server{
		cfg:           cfg,
		authenticator: auth.NewAuthenticator(conn, cfg.JWT.Secret),
		credentials:   credentials,
		chat:          NewChatHandler(credentials, recorder, cfg.Upstream),
		models:        NewModelsHandler(credentials),
		system:        NewSystemHandler(conn, rdb, responseCache, limiter, windows, recorder),
		cache:         responseCache,
		limiter:       limiter,
		windows:       windows,
	}
}

// RegisterRoutes installs middleware and the full route table on the
// engine. Pipeline order is fixed: annotation, recovery, access log, then
// per-group auth, rate limiting and caching ahead of the handlers.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.Use(Annotate(), Recovery(), AccessLog())

	engine.GET("/healthz", s.system.Healthz)
	engine.GET("/v1/providers", ListProviders)

	v1 := engine.Group("/v1", s.authenticator.Middleware())
	v1.Use(ratelimit.Middleware(s.limiter, s.windows, ratelimit.AnonWindows(s.windows), auth.CallerID))
	if s.cfg.Cache.Enabled {
		v1.Use(cache.Middleware(s.cache, auth.CallerID))
	}

	v1.POST("/auth/token", s.IssueSessionToken)

	v1.POST("/chat/completions", s.chat.ChatCompletions)
	v1.POST("/chat/completions/stream", s.chat.ChatCompletionsStream)
	v1.GET("/models", s.models.ListModels)

	credentials := v1.Group("/credentials")
	credentials.GET("", s.credentials.ListCredentials)
	credentials.POST("", auth.RequireScope("api:write"), s.credentials.CreateCredential)
	credentials.DELETE("/:id", auth.RequireScope("api:write"), s.credentials.DeleteCredential)

	system := v1.Group("/system")
	system.GET("/cache/stats", s.system.CacheStats)
	system.DELETE("/cache/clear", auth.RequireScope("api:write"), s.system.CacheClear)
	system.DELETE("/cache/user/:id", auth.RequireScope("api:write"), s.system.CacheInvalidateUser)
	system.DELETE("/cache/endpoint", auth.RequireScope("api:write"), s.system.CacheInvalidateEndpoint)
	system.POST("/cache/invalidate", auth.RequireScope("api:write"), s.system.CacheInvalidate)
	system.GET("/rate-limit/status", s.system.RateLimitStatus)
	system.GET("/usage", s.system.UsageSummary)
}
