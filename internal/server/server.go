package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"watermarkd/internal/config"
	"watermarkd/internal/handler"
	"watermarkd/internal/repository"
	"watermarkd/internal/service"
	"watermarkd/internal/watermark"
	"watermarkd/pkg/imaging"
)

type Server struct {
	httpServer *http.Server
	worker     *service.VerificationWorker
	ledger     repository.Ledger
	workerStop context.CancelFunc
	cfg        *config.Config
	log        *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// Global so OPTIONS preflights are answered even without a matching route.
	router.Use(handler.CORS())

	store, err := repository.NewS3Repository(&cfg.S3, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 repository: %w", err)
	}

	ledger, err := repository.NewRedisLedger(&cfg.Redis, cfg.Watermark.ResultRetention, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification ledger: %w", err)
	}

	codec := watermark.NewHTTPCodec(cfg.Codec.Endpoint, cfg.Codec.Timeout, log)
	encoder := imaging.NewEncoder(log)
	provenance := repository.NewS3ProvenanceIndex(store, cfg.S3.ProvenanceBucket, cfg.Watermark.DomainName, log)

	embedSvc := service.NewEmbedService(store, codec, encoder, &cfg.Watermark, log)
	extractSvc := service.NewExtractService(codec, provenance, log)
	worker := service.NewVerificationWorker(extractSvc, ledger, cfg.Watermark.ResultRetention, cfg.Watermark.QueueSize, log)

	h := handler.NewHandler(embedSvc, worker, ledger, cfg.Watermark.DomainName, log)

	router.GET("/health", h.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/verify-watermark", h.VerifyWatermark)
		api.GET("/check-result", h.CheckResult)
		api.POST("/watermark", h.Watermark)
	}

	workerCtx, workerStop := context.WithCancel(context.Background())
	worker.Start(workerCtx)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   120 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		worker:     worker,
		ledger:     ledger,
		workerStop: workerStop,
		cfg:        cfg,
		log:        log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port))

	return server, nil
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	// Let queued verification jobs reach a terminal record before the ledger
	// connection closes.
	s.worker.Stop()
	s.workerStop()

	return s.ledger.Close()
}
