package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/peerlearn/peerlearn-api/api/swagger"
	"github.com/peerlearn/peerlearn-api/internal/realtime"
	"github.com/peerlearn/peerlearn-api/internal/repository"
	"github.com/peerlearn/peerlearn-api/internal/service"
	"github.com/peerlearn/peerlearn-api/migrations"
	"github.com/peerlearn/peerlearn-api/pkg/ai"
	"github.com/peerlearn/peerlearn-api/pkg/cache"
	"github.com/peerlearn/peerlearn-api/pkg/config"
	"github.com/peerlearn/peerlearn-api/pkg/database"
	"github.com/peerlearn/peerlearn-api/pkg/export"
	"github.com/peerlearn/peerlearn-api/pkg/jobs"
	"github.com/peerlearn/peerlearn-api/pkg/logger"
	"github.com/peerlearn/peerlearn-api/pkg/mail"
	"github.com/peerlearn/peerlearn-api/pkg/media"
	"github.com/peerlearn/peerlearn-api/pkg/scheduler"
	"github.com/peerlearn/peerlearn-api/pkg/slides"
	"github.com/peerlearn/peerlearn-api/pkg/storage"
)

// @title PeerLearn API
// @version 1.0.0
// @description Collaborative study platform: classrooms, real-time chat, AI study sessions and a notes marketplace.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db, migrations.FS, logr)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logr.Info("migrations applied", zap.Strings("versions", applied))
	}

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	app, err := build(cfg, db, rdb, logr)
	if err != nil {
		return err
	}

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("start realtime hub: %w", err)
	}
	defer app.hub.Close() //nolint:errcheck

	app.slideQueue.Start(ctx)
	defer app.slideQueue.Stop()

	if cfg.Cron.Enabled {
		for _, job := range app.maintenance.Jobs() {
			if err := app.scheduler.Register(job); err != nil {
				return fmt.Errorf("register cron job %s: %w", job.Name, err)
			}
		}
		app.scheduler.Start()
		defer app.scheduler.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, app, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// application holds the long-lived components the router and lifecycle need.
type application struct {
	db          *sqlx.DB
	redis       *redis.Client
	metrics     *service.MetricsService
	auth        *service.AuthService
	friends     *service.FriendService
	classrooms  *service.ClassroomService
	chat        *service.ChatService
	direct      *service.DirectMessageService
	youtube     *service.YouTubeService
	documents   *service.DocumentService
	sessions    *service.DocumentSessionService
	slides      *service.SlideService
	marketplace *service.MarketplaceService
	teachers    *service.TeacherService
	maintenance *service.MaintenanceService
	hub         *realtime.Hub
	gateway     *realtime.Gateway
	slideQueue  *jobs.Queue
	scheduler   *scheduler.Scheduler
	objects     storage.ObjectStore
	localFiles  *storage.LocalStorage
}

func build(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, logr *zap.Logger) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	localFiles, err := storage.NewLocalStorage(cfg.Storage.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("init local storage: %w", err)
	}
	objects, err := newObjectStore(cfg.Storage, localFiles)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Files.SignedURLSecret, cfg.Files.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	youtubeRepo := repository.NewYouTubeSessionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	documentSessionRepo := repository.NewDocumentSessionRepository(db)
	slideStateRepo := repository.NewSlideStateRepository(db)
	marketplaceRepo := repository.NewMarketplaceRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	verifications := repository.NewVerificationStore(rdb)
	cacheRepo := repository.NewCacheRepository(rdb, logr)

	llm := ai.NewClient(ai.Config{
		BaseURL:      cfg.AI.BaseURL,
		APIKey:       cfg.AI.APIKey,
		DefaultModel: cfg.AI.ChatModel,
		Timeout:      cfg.AI.Timeout,
	})
	studyAI := service.NewStudyAI(llm, metrics, logr, service.StudyAIConfig{ChatModel: cfg.AI.ChatModel, RetryBase: time.Second})
	moderation := service.NewModerationService(llm, cfg.AI.ModerationModel, metrics, logr)
	mailer := mail.NewMailer(mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		AppURL:   cfg.Mail.AppURL,
	})
	transcriber := media.NewTranscriber(media.TranscriberConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.Transcription.WhisperModel,
		Timeout: cfg.Transcription.PipelineTimeout,
	}, nil)
	downloader := media.NewDownloader(cfg.Transcription.YTDLPPath)
	renderer, err := slides.NewRenderer(slides.Options{
		Width:       cfg.Slides.Width,
		Height:      cfg.Slides.Height,
		Concurrency: cfg.Slides.Concurrency,
		FontPath:    cfg.Slides.FontPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init slide renderer: %w", err)
	}

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Marketplace.LeaderboardTTL, logr, true)
	exporter := service.NewExportService(localFiles, service.ExportConfig{ResultTTL: cfg.Cron.ExportTTL}, logr, export.NewCSVExporter())

	authSvc := service.NewAuthService(userRepo, service.AuthDeps{
		Verifications: verifications,
		Friends:       friendRepo,
		Teachers:      teacherRepo,
		Mailer:        mailer,
		Store:         objects,
	}, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		VerificationTTL:    cfg.Verification.CodeTTL,
	})
	friendSvc := service.NewFriendService(friendRepo, userRepo, logr)
	classroomSvc := service.NewClassroomService(classroomRepo, roomRepo, userRepo, friendRepo, studyAI, validate, logr)
	membership := service.NewMembership(roomRepo, classroomRepo)
	chatSvc := service.NewChatService(messageRepo, membership, moderation, studyAI, userRepo, validate, logr)
	directSvc := service.NewDirectMessageService(conversationRepo, friendRepo, studyAI, objects, logr)
	youtubeSvc := service.NewYouTubeService(youtubeRepo, downloader, transcriber, studyAI, exporter, validate, logr, service.YouTubeConfig{
		WorkDir:         cfg.Transcription.WorkDir,
		MaxDuration:     cfg.Transcription.MaxDuration,
		PipelineTimeout: cfg.Transcription.PipelineTimeout,
	})
	documentSvc := service.NewDocumentService(documentRepo, studyAI, validate, logr)
	sessionSvc := service.NewDocumentSessionService(documentSessionRepo, documentRepo, studyAI, exporter, validate, logr)
	marketplaceSvc := service.NewMarketplaceService(marketplaceRepo, objects, cacheSvc, signer, validate, logr, service.MarketplaceConfig{
		InitialCredits: cfg.Marketplace.InitialCredits,
		LeaderboardTTL: cfg.Marketplace.LeaderboardTTL,
	})
	teacherSvc := service.NewTeacherService(teacherRepo, userRepo, conversationRepo, objects, validate, logr)

	slideSvc := service.NewSlideService(slideStateRepo, logr)
	slideWorker := service.NewSlideWorker(slideStateRepo, youtubeRepo, documentSessionRepo, studyAI, renderer, objects, metrics, logr)
	// A failed slide job is terminal; the client restarts it explicitly.
	slideQueue := jobs.NewQueue("slides", slideWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Slides.Workers,
		BufferSize: 64,
		JobTimeout: cfg.Slides.StuckAfter,
		Logger:     logr,
	})
	slideSvc.SetQueue(slideQueue)

	maintenanceSvc := service.NewMaintenanceService(exporter, slideSvc, userRepo, logr, service.MaintenanceConfig{
		CleanupSchedule:    cfg.Cron.CleanupSchedule,
		StuckJobsSchedule:  cfg.Cron.StuckJobsSchedule,
		TokenPurgeSchedule: cfg.Cron.TokenPurgeSchedule,
		ExportTTL:          cfg.Cron.ExportTTL,
		SlidesStuckAfter:   cfg.Slides.StuckAfter,
		WorkDir:            cfg.Transcription.WorkDir,
	})

	var bus realtime.Bus = realtime.NewLocalBus()
	if cfg.Realtime.UseRedis {
		redisBus, err := realtime.NewRedisBus(rdb, cfg.Realtime.Channel, logr)
		if err != nil {
			return nil, fmt.Errorf("init realtime bus: %w", err)
		}
		bus = redisBus
	}
	hub := realtime.NewHub(bus, logr).WithMetrics(metrics)
	chatSvc.SetBroadcaster(hub)
	gateway := realtime.NewGateway(hub, authSvc, userRepo, chatSvc, realtime.GatewayOptions{
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
		SendBuffer:     cfg.Realtime.SendBuffer,
	}, logr).WithMetrics(metrics)

	return &application{
		db:          db,
		redis:       rdb,
		metrics:     metrics,
		auth:        authSvc,
		friends:     friendSvc,
		classrooms:  classroomSvc,
		chat:        chatSvc,
		direct:      directSvc,
		youtube:     youtubeSvc,
		documents:   documentSvc,
		sessions:    sessionSvc,
		slides:      slideSvc,
		marketplace: marketplaceSvc,
		teachers:    teacherSvc,
		maintenance: maintenanceSvc,
		hub:         hub,
		gateway:     gateway,
		slideQueue:  slideQueue,
		scheduler:   scheduler.New(logr),
		objects:     objects,
		localFiles:  localFiles,
	}, nil
}

func newObjectStore(cfg config.StorageConfig, local *storage.LocalStorage) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case "", "local":
		return storage.NewLocalObjectStore(local, cfg.PublicBaseURL), nil
	case "s3":
		store, err := storage.NewS3Store(storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			CDNURL:    cfg.S3CDNURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
