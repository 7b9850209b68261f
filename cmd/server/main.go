package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafcheck-api/internal/config"
	"github.com/Brownie44l1/leafcheck-api/internal/handlers"
	"github.com/Brownie44l1/leafcheck-api/internal/logger"
	"github.com/Brownie44l1/leafcheck-api/internal/model"
	"github.com/Brownie44l1/leafcheck-api/internal/preprocess"
	"github.com/Brownie44l1/leafcheck-api/internal/recommend"
	"github.com/Brownie44l1/leafcheck-api/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	// --- Model ---
	labels, err := model.LoadLabels(cfg.Model.LabelsDir)
	if err != nil {
		zapLog.Fatal("failed to load labels", zap.Error(err))
	}

	layout := preprocess.Layout(cfg.Model.Layout)
	metadata := model.DefaultMetadata(cfg.Model.ImageSize, layout == preprocess.LayoutNCHW, len(labels))
	if cfg.Model.MetadataPath != "" {
		metadata, err = model.LoadMetadata(cfg.Model.MetadataPath)
		if err != nil {
			zapLog.Fatal("failed to load model metadata", zap.Error(err))
		}
	}
	if err := metadata.CheckLabels(labels); err != nil {
		zapLog.Fatal("labels do not match model", zap.Error(err))
	}

	// The input shape decides the tensor geometry; config only fills in
	// when no metadata file is shipped.
	imageSize, channelsFirst, err := metadata.InputGeometry()
	if err != nil {
		zapLog.Fatal("unsupported model input", zap.Error(err))
	}
	if channelsFirst {
		layout = preprocess.LayoutNCHW
	} else {
		layout = preprocess.LayoutNHWC
	}
	if imageSize != cfg.Model.ImageSize || string(layout) != cfg.Model.Layout {
		zapLog.Warn("model metadata overrides configured input geometry",
			zap.Int("imageSize", imageSize),
			zap.String("layout", string(layout)),
		)
	}

	zapLog.Info("loading model", zap.String("path", cfg.Model.Path), zap.Strings("classes", labels))
	modelServer, err := model.NewServer(model.ServerOptions{
		ModelPath:   cfg.Model.Path,
		LibraryPath: cfg.Model.ONNXLibrary,
		InputName:   cfg.Model.InputName,
		OutputName:  cfg.Model.OutputName,
		Metadata:    metadata,
	})
	if err != nil {
		zapLog.Fatal("failed to initialize model server", zap.Error(err))
	}
	defer modelServer.Close()

	classifier, err := model.NewClassifier(modelServer, labels)
	if err != nil {
		zapLog.Fatal("failed to build classifier", zap.Error(err))
	}

	// --- Recommendations ---
	var generator recommend.Generator
	if cfg.Recommendation.APIKey != "" {
		generator = recommend.NewGeminiClient(&recommend.GeminiConfig{
			BaseURL: cfg.Recommendation.BaseURL,
			APIKey:  cfg.Recommendation.APIKey,
			Model:   cfg.Recommendation.Model,
			Generation: recommend.GenerationConfig{
				Temperature:     cfg.Recommendation.Temperature,
				TopP:            cfg.Recommendation.TopP,
				TopK:            cfg.Recommendation.TopK,
				MaxOutputTokens: cfg.Recommendation.MaxOutputTokens,
			},
			Timeout: config.GetDuration(cfg.Recommendation.Timeout),
		}, nil)
	} else {
		zapLog.Warn("GOOGLE_API_KEY not set, recommendations are disabled")
	}

	var cache recommend.Cache
	if cfg.Cache.Redis.Address != "" {
		redisCache := recommend.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		}), time.Duration(cfg.Cache.TTL)*time.Second)

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			zapLog.Warn("redis unavailable, recommendation cache disabled", zap.Error(err))
			redisCache.Close()
		} else {
			zapLog.Info("recommendation cache enabled", zap.String("address", cfg.Cache.Redis.Address))
			cache = redisCache
			defer redisCache.Close()
		}
	}

	recommender := recommend.NewService(generator, cache, log)

	// --- HTTP ---
	handler := handlers.NewHandler(classifier, recommender, upload.NewStore(cfg.Uploads.Dir), handlers.Options{
		Preprocess: preprocess.Options{
			Size:     imageSize,
			Layout:   layout,
			Resample: cfg.Model.Resample,
		},
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, log)

	route := func(path string, h http.HandlerFunc) http.HandlerFunc {
		h = handlers.Instrument(path, log, h)
		if cfg.Server.CORSEnabled {
			h = handlers.EnableCORS(h)
		}
		return h
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", route("/", handler.Index))
	mux.HandleFunc("/predict", route("/predict", handler.Predict))
	mux.HandleFunc("/get_recommendation", route("/get_recommendation", handler.GetRecommendation))
	mux.HandleFunc("/health", route("/health", handler.Health))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.Bool("recommendations", recommender.Configured()),
			zap.Bool("cache", cache != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("shutdown signal received, draining requests...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("server stopped")
}
