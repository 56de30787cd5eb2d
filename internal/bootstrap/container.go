package bootstrap

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"ai-interview-be/internal/config"
	"ai-interview-be/internal/controller"
	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/internal/repository/contract"
	"ai-interview-be/internal/repository/memory"
	"ai-interview-be/internal/repository/redisstore"
	"ai-interview-be/internal/service"
	"ai-interview-be/pkg/question"
	"ai-interview-be/pkg/synthesis"
	"ai-interview-be/pkg/transcriber"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	SessionController controller.ISessionController
	HealthController  controller.IHealthController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
}

// newSessionRepository connects the configured Redis store. Outside
// production an unreachable Redis falls back to the in-memory repository so
// local development works without infrastructure; in production that
// substitution would hand every instance its own divergent state, so startup
// fails instead.
func newSessionRepository(cfg *config.Config) (contract.SessionRepository, error) {
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		if cfg.App.Environment == "production" {
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.App.RedisURL, err)
		}
		log.Printf("[WARN] Failed to connect to Redis: %v. Using in-memory session store", err)
		return memory.NewSessionRepository(cfg.Session.Timeout), nil
	}
	return redisstore.NewSessionRepository(rdb), nil
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Session Store
	sessionRepo, err := newSessionRepository(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}

	// 4. AI Adapters
	httpClient := &http.Client{Timeout: cfg.Ai.AdapterTimeout}
	transcriberClient := transcriber.NewGeminiTranscriber(cfg.Keys.GoogleGemini, cfg.Ai.TranscribeModel, httpClient)
	generatorClient := question.NewGeminiGenerator(cfg.Keys.GoogleGemini, cfg.Ai.QuestionModel, httpClient)
	synthesizerClient := synthesis.NewElevenLabsSynthesizer(
		cfg.Keys.ElevenLabs,
		cfg.Ai.SynthesisModel,
		cfg.Ai.SynthesisVoice,
		httpClient,
	)

	// 5. Services
	publisherService := service.NewPublisherService(cfg.App.EventTopic, pubSub)
	consumerService := service.NewConsumerService(pubSub, cfg.App.EventTopic, sysLogger)

	sessionService := service.NewSessionService(
		sessionRepo,
		transcriberClient,
		generatorClient,
		synthesizerClient,
		publisherService,
		sysLogger,
		cfg,
	)

	// 6. Controllers
	sessionController := controller.NewSessionController(sessionService, cfg.App.JwtSecret)
	healthController := controller.NewHealthController(sessionService)

	return &Container{
		SessionController: sessionController,
		HealthController:  healthController,
		ConsumerService:   consumerService,
	}
}
