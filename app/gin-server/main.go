package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/GradientHair/GradientHair/config"
	"github.com/GradientHair/GradientHair/internal/api/handlers"
	"github.com/GradientHair/GradientHair/internal/api/middleware"
	"github.com/GradientHair/GradientHair/internal/api/routes"
	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/cache"
	"github.com/GradientHair/GradientHair/internal/logger"
	"github.com/GradientHair/GradientHair/internal/moderation"
	"github.com/GradientHair/GradientHair/internal/providers/stt"
	mongorepo "github.com/GradientHair/GradientHair/internal/repositories/mongo"
	pgrepo "github.com/GradientHair/GradientHair/internal/repositories/postgres"
	"github.com/GradientHair/GradientHair/internal/services"
	"github.com/GradientHair/GradientHair/internal/storage"
	"github.com/GradientHair/GradientHair/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.MigratePostgres(); err != nil {
		log.Fatalf("PostgreSQL migrate error: %v", err)
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	log.Info("Redis connected")

	modCfg, err := config.LoadModeration()
	if err != nil {
		log.Fatalf("moderation config error: %v", err)
	}
	gateway, err := config.NewGateway(ctx, modCfg)
	if err != nil {
		log.Fatalf("LLM gateway init error: %v", err)
	}
	defer gateway.Close()

	var artifacts storage.ArtifactStore
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		gcs, err := storage.NewGCSStore(ctx, bucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcs.Close()
		artifacts = gcs
	} else {
		log.Warn("GCS_BUCKET not set; meeting artifacts are disabled")
	}

	var speech stt.Provider
	if os.Getenv("STT_DISABLED") != "true" {
		gs, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.Fatalf("speech-to-text init error: %v", err)
		}
		defer gs.Close()
		speech = gs
	}

	db := config.MongoDatabase()
	meetingsRepo := mongorepo.NewMeetingRepo(db)
	transcriptRepo := mongorepo.NewTranscriptRepo(db)
	interventionRepo := mongorepo.NewInterventionRepo(db)
	reviewRepo := pgrepo.NewReviewRepo(config.PostgresDB)
	reportCache := cache.NewRedisCache(config.RedisClient, "moderator:")

	archive := services.NewArchiveService(meetingsRepo, transcriptRepo, interventionRepo, reviewRepo, artifacts, reportCache,
		log.WithField("component", "archive"))

	manager := moderation.NewManager(&moderation.Builder{
		Gateway:     gateway,
		Config:      modCfg.Config,
		Broadcaster: broadcast.NewRedis(config.RedisClient, log.WithField("component", "broadcast")),
		Persister:   archive,
		Log:         log.WithField("component", "moderation"),
	})

	principleSvc := services.NewPrincipleService(mongorepo.NewPrincipleRepo(db))
	meetingSvc := services.NewMeetingService(meetingsRepo, transcriptRepo, interventionRepo, manager, principleSvc)
	reportSvc := services.NewReportService(reviewRepo, artifacts, reportCache)

	pool := &workers.TranscriptWorkerPool{
		Redis:    config.RedisClient,
		Sessions: manager,
		STT:      speech,
		Logger:   log,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("transcript workers error: %v", err)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Meeting:   handlers.NewMeetingHandler(meetingSvc),
		Principle: handlers.NewPrincipleHandler(principleSvc),
		Report:    handlers.NewReportHandler(reportSvc),
		Admin:     handlers.NewAdminHandler(manager),
		WS:        handlers.NewWSHandler(meetingSvc, config.RedisClient, splitList(os.Getenv("WS_ALLOWED_ORIGINS"))),
		JWT:       middleware.JWTConfigFromEnv(),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()
	log.WithField("port", port).Info("server started")

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	manager.Close()
	if err := config.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("backend shutdown")
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
