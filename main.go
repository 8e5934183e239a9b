package main

import (
	"log"
	"os"
	"time"

	"voxloom/internal/api"
	"voxloom/internal/auth"
	"voxloom/internal/config"
	"voxloom/internal/crm"
	"voxloom/internal/pipeline"
	"voxloom/internal/redis"
	"voxloom/internal/service/reply"
	"voxloom/internal/service/speech"
	"voxloom/internal/service/support"
	"voxloom/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; it can carry VOXLOOM_API_KEY and VOXLOOM_DB.
	_ = godotenv.Load()

	cfgPath := os.Getenv("VOXLOOM_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg.BasicConfig.Debug)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	dbType := os.Getenv("VOXLOOM_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create the five tables: sessions, messages, model_calls, crm_records,
	// tool_calls.
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer cache.Close()
	}

	supportService := support.NewService(db, cache, logger)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	intakeURL := cfg.CRM.IntakeURL
	if intakeURL == "" {
		intakeURL = "http://127.0.0.1" + addr + "/api/v1/tools/mcp"
	}
	crmClient := crm.NewClient(intakeURL, cfg.BasicConfig.APIKey, time.Duration(cfg.CRM.TimeoutSeconds)*time.Second)
	dispatcher := crm.NewDispatcher(crmClient, cfg.CRM.Workers, cfg.CRM.QueueSize, logger)
	defer dispatcher.Close()

	media := speech.NewMediaStore(cfg.BasicConfig.MediaDir)
	pipe := pipeline.New(
		supportService,
		speech.StubASR{},
		speech.NewStubTTS(media),
		media,
		reply.RuleBased{},
		dispatcher,
		logger,
	)

	authService := auth.NewService(cfg.BasicConfig.APIKey)
	handlers := api.NewHandler(supportService, pipe, authService, logger)

	if !cfg.BasicConfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	handlers.RegisterRoutes(router)

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
