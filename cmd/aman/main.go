package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"amanhealth/internal/app"
	"amanhealth/internal/config"
	"amanhealth/internal/notify"
	"amanhealth/internal/server"
	"amanhealth/internal/util"
	"amanhealth/pkg/ai"
	"amanhealth/pkg/backup"
	"amanhealth/pkg/drive"
	"amanhealth/pkg/storage"
	"amanhealth/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	var st store.Store
	if cfg.DatabaseURL != "" {
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init database: %v", err)
		}
		st = gormStore
	} else {
		slog.Warn("no databaseURL configured, data is kept in memory only")
		st = store.NewMemoryStore()
	}

	appCore := app.New(app.Config{
		Store:    st,
		Payers:   cfg.Payers,
		Currency: cfg.Currency,
	})

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("failed to init gemini client: %v", err)
	}
	classifier, err := ai.NewClassifier(gemini, cfg.GenerationModel, ai.DocumentThinkingBudget)
	if err != nil {
		log.Fatalf("failed to init classifier: %v", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init minio: %v", err)
		}
		objects = minioStore
	} else {
		diskStore, err := storage.NewDiskStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("failed to init attachment storage: %v", err)
		}
		objects = diskStore
	}

	notifier, err := notify.Connect(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("failed to connect amqp: %v", err)
	}
	defer notifier.Close()

	var backups *backup.Manager
	if cfg.DriveKeyPath != "" {
		driveClient, err := drive.NewClient(cfg.DriveKeyPath, cfg.DriveClientEmail)
		if err != nil {
			log.Fatalf("failed to init drive client: %v", err)
		}
		backups = backup.New(st, driveClient, notifier, cfg.DriveFolderID, cfg.DriveBackupFileName)
	} else {
		slog.Warn("drive backup disabled, no driveKeyPath configured")
	}

	httpServer, err := server.New(server.Config{
		App:                  appCore,
		Gemini:               gemini,
		Classifier:           classifier,
		GenerationModel:      cfg.GenerationModel,
		ImageModel:           cfg.ImageModel,
		VideoModel:           cfg.VideoModel,
		Backups:              backups,
		Objects:              objects,
		RedisAddr:            cfg.RedisAddr,
		RedisPassword:        cfg.RedisPassword,
		AIRateLimitPerMinute: cfg.AIRateLimitPerMinute,
		MaxUploadBytes:       cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
