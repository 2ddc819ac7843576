package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"health-screening/analysis"
	"health-screening/config"
	"health-screening/database"
	"health-screening/handlers"
	"health-screening/metrics"
	"health-screening/middleware"
	"health-screening/notify"
	"health-screening/rabbitmq"
	"health-screening/ratelimit"
	"health-screening/service"
	"health-screening/storage"
	"health-screening/upload"
	"health-screening/websocket"
)

const (
	shutdownTimeout    = 30 * time.Second
	tokenSweepInterval = time.Hour
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.InitializeSchema(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	store := storage.NewS3Store(awsCfg, cfg.S3Bucket)

	submissions := database.NewSubmissionStore(db, cfg.UseChurchDateIndex)
	churches := database.NewChurchStore(db)
	users := database.NewUserStore(db)
	tokens := database.NewRefreshTokenStore(db)

	authService := service.NewAuthService(users, tokens, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err := authService.EnsureSeedAdmin(ctx, cfg.AdminSeedEmail, cfg.AdminSeedPassword, cfg.AdminSeedName); err != nil {
		log.Fatalf("Failed to seed admin account: %v", err)
	}

	notifier := setupNotifier(cfg, awsCfg)

	metrics.Register()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	deps := service.IntakeDeps{
		Store:            store,
		Analyzer:         analysis.NewClient(cfg.AnalysisAPIURL, cfg.AnalysisAPIKey, cfg.AnalysisTimeout, cfg.AnalysisRatePerSec),
		Submissions:      submissions,
		Churches:         churches,
		Live:             hub,
		Messenger:        notifier,
		Policy:           upload.DefaultImagePolicy(cfg.MaxUploadBytes),
		SendConfirmation: cfg.SendConfirmationSMS,
	}
	if cfg.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			log.Fatalf("Failed to create event publisher: %v", err)
		}
		defer publisher.Close()
		deps.Events = publisher
	} else {
		log.Info("AMQP_URL not set, submission events are not published")
	}

	limiter := setupRateLimiter(ctx, cfg)
	go sweepRefreshTokens(ctx, tokens)

	router := setupRouter(cfg, routerDeps{
		db:       db,
		limiter:  limiter,
		auth:     authService,
		intake:   handlers.NewIntakeHandler(service.NewIntakeService(deps), cfg.MaxUploadBytes),
		admin:    handlers.NewAdminHandler(service.NewAdminService(submissions, notifier, cfg.ExportLimit), service.NewPhotoService(store, submissions, cfg.AdminURLTTL, cfg.PublicURLTTL)),
		session:  handlers.NewAuthHandler(authService, cfg.CookieSecure, cfg.CookieDomain),
		churches: handlers.NewChurchHandler(service.NewChurchService(churches, cfg.PublicFormURL)),
		live:     handlers.NewLiveHandler(hub, cfg.AllowedOrigins),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}
	log.SetLevel(level)

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

// setupNotifier enables SMS when SMS_ENABLED is set and email when a
// SendGrid key is configured
func setupNotifier(cfg *config.Config, awsCfg aws.Config) *notify.Notifier {
	var sms notify.SMSSender
	if cfg.SMSEnabled {
		sms = notify.NewSNSSender(awsCfg, cfg.SMSSenderID)
	}
	var mail notify.Mailer
	if cfg.SendGridAPIKey != "" {
		mail = notify.NewEmailSender(cfg.SendGridAPIKey, cfg.SendGridFromName, cfg.SendGridFromEmail)
	}
	log.Infof("Notifications: sms=%t email=%t", sms != nil, mail != nil)
	return notify.NewNotifier(sms, mail)
}

// setupRateLimiter uses Redis when REDIS_URL is set so counters are shared
// across instances, and a swept in-memory store otherwise
func setupRateLimiter(ctx context.Context, cfg *config.Config) *ratelimit.Limiter {
	if cfg.RedisURL != "" {
		client, err := ratelimit.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		log.Info("Rate limiting with redis store")
		return ratelimit.NewLimiter(ratelimit.NewRedisStore(client, "ratelimit:"), nil)
	}

	mem := ratelimit.NewMemoryStore()
	go mem.StartSweeper(ctx, cfg.RateLimitSweepInterval)
	log.Warn("Rate limiting with in-memory store; limits are per instance")
	return ratelimit.NewLimiter(mem, nil)
}

func sweepRefreshTokens(ctx context.Context, tokens *database.RefreshTokenStore) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tokens.DeleteExpired(ctx)
			if err != nil {
				log.Warnf("Failed to delete expired refresh tokens: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("Deleted %d expired refresh tokens", n)
			}
		}
	}
}

type routerDeps struct {
	db       *sql.DB
	limiter  *ratelimit.Limiter
	auth     *service.AuthService
	intake   *handlers.IntakeHandler
	admin    *handlers.AdminHandler
	session  *handlers.AuthHandler
	churches *handlers.ChurchHandler
	live     *handlers.LiveHandler
}

func setupRouter(cfg *config.Config, d routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
	}

	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestLogger())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/api/v1/admin/live",
		"/api/v1/submissions",
	})))

	router.GET("/health", handlers.HealthHandler(d.db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiLimit := middleware.RateLimit(d.limiter, ratelimit.KindAPI)

	api := router.Group("/api/v1")
	{
		api.GET("/churches", apiLimit, d.churches.PublicList)
		api.POST("/submissions", apiLimit, middleware.RateLimit(d.limiter, ratelimit.KindUpload), d.intake.Submit)
		api.POST("/photos/signed-url", apiLimit, d.admin.ParticipantPhotoURL)

		auth := api.Group("/auth")
		auth.POST("/login", middleware.RateLimit(d.limiter, ratelimit.KindLogin), d.session.Login)
		auth.POST("/refresh", middleware.RateLimit(d.limiter, ratelimit.KindRefresh), d.session.Refresh)
		auth.POST("/logout", d.session.Logout)
		auth.GET("/me", middleware.RequireAdmin(d.auth), d.session.Me)
	}

	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireAdmin(d.auth))
	{
		admin.GET("/submissions", d.admin.ListSubmissions)
		admin.GET("/submissions/:id", d.admin.GetSubmission)
		admin.PUT("/submissions/:id/follow-up", d.admin.UpdateFollowUp)
		admin.POST("/submissions/:id/notify", d.admin.Notify)
		admin.POST("/export", d.admin.Export)
		admin.GET("/stats", d.admin.Stats)
		admin.POST("/photos/signed-url", d.admin.AdminPhotoURL)

		admin.GET("/churches", d.churches.List)
		admin.POST("/churches", d.churches.Create)
		admin.PUT("/churches/:id", d.churches.Update)
		admin.DELETE("/churches/:id", d.churches.Delete)
		admin.GET("/churches/:id/qr", d.churches.QRCode)

		admin.GET("/live", d.live.Subscribe)
	}

	return router
}

// corsConfig allows credentialed requests from the configured origins. With
// no origins configured only same-origin browser requests get through.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		log.Warn("ALLOWED_ORIGINS not set, cross-origin requests are refused")
		cfg.AllowOriginFunc = func(origin string) bool { return false }
	}
	return cfg
}
