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

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/naseer2426/ocr-server/internal/api"
	"github.com/naseer2426/ocr-server/internal/config"
	"github.com/naseer2426/ocr-server/internal/health"
	"github.com/naseer2426/ocr-server/internal/logging"
	"github.com/naseer2426/ocr-server/internal/ocr"
	"github.com/naseer2426/ocr-server/internal/ocr/tesseract"
	"github.com/naseer2426/ocr-server/internal/pipeline"
	"github.com/naseer2426/ocr-server/internal/receipt"
	"github.com/naseer2426/ocr-server/internal/stats"
	"github.com/naseer2426/ocr-server/internal/telegram"
	"github.com/naseer2426/ocr-server/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := config.LoadEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.LogLevel, cfg.GinMode)
	gin.SetMode(cfg.GinMode)

	engine, closeEngine := initEngine(cfg, log)
	defer closeEngine()

	pool := worker.NewPool(cfg.Workers)
	defer pool.Close()

	p := pipeline.New(engine, pool, pipeline.Options{
		Language:       cfg.Language,
		Timeout:        cfg.Timeout,
		MaxImagePixels: cfg.MaxImagePixels,
		MinConfidence:  cfg.MinConfidence,
	}, log)

	monitor, err := health.NewMonitor(engine, cfg.Language, cfg.HealthSchedule, cfg.Timeout, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create health monitor")
	}
	monitor.Start()
	defer monitor.Stop()

	store := stats.NewStore()
	h := &api.OCRHandler{
		Pipeline:       p,
		Receipts:       initReceipts(cfg, log),
		Stats:          store,
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	router := initRouter(log)
	router.GET("/", api.HealthCheck)
	router.GET("/healthz", api.Readiness(monitor))
	router.GET("/stats", api.Stats(store))
	router.POST("/ocr", h.Extract)
	router.POST("/ocr/receipt", h.Receipt)

	if cfg.TelegramBotToken != "" {
		t := &api.TelegramWebhook{
			Pipeline:       p,
			TelegramAPI:    telegram.NewTelegramAPI(cfg.TelegramBotToken, cfg.TelegramBaseURL),
			Stats:          store,
			Log:            log,
			MaxUploadBytes: cfg.MaxUploadBytes,
		}
		router.POST("/telegram/webhook", t.TelegramWebhook)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"engine":  engine.Name(),
			"workers": cfg.Workers,
		}).Info("starting ocr server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

func initEngine(cfg *config.Config, log *logrus.Logger) (ocr.Engine, func()) {
	if cfg.Engine == config.EngineMistral {
		return ocr.NewMistralOCR(cfg.MistralAPIKey, cfg.MistralBaseURL, cfg.MistralModel), func() {}
	}

	if !tesseract.Available() {
		log.Warn("tesseract binary not found on PATH; recognition will fail until it is installed")
	} else {
		log.WithField("version", tesseract.Version()).Info("using tesseract")
	}
	e := tesseract.NewEngine(tesseract.Options{
		Languages:      strings.Split(cfg.Language, "+"),
		TessdataPrefix: cfg.TessdataPrefix,
		PageSegMode:    cfg.TesseractPSM,
		MaxIdle:        cfg.Workers,
	})
	return e, func() {
		if err := e.Close(); err != nil {
			log.WithError(err).Warn("failed to close tesseract clients")
		}
	}
}

func initReceipts(cfg *config.Config, log *logrus.Logger) *receipt.Extractor {
	if cfg.OllamaURL == "" {
		return receipt.NewExtractor(nil, log)
	}
	llm, err := receipt.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	if err != nil {
		log.WithError(err).Warn("ollama unavailable, receipts use pattern extraction only")
		return receipt.NewExtractor(nil, log)
	}
	return receipt.NewExtractor(llm, log)
}

func initRouter(log *logrus.Logger) *gin.Engine {
	router := gin.New()

	router.Use(requestid.New())
	router.Use(logging.Middleware(log))
	router.Use(gin.Recovery())
	// Allow CORS for all origins
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With", "X-Request-ID"},
		ExposeHeaders:   []string{"Content-Length", "X-Request-ID"},
	}))

	return router
}
