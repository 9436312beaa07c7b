package server

import (
	"context"
	"database/sql"
	"net/http"

	sentry "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/middleware"
	"github.com/fraudguard-labs/fraudguard/service/ai"
	"github.com/fraudguard-labs/fraudguard/service/fraud"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	nftservice "github.com/fraudguard-labs/fraudguard/service/nft"
	"github.com/fraudguard-labs/fraudguard/service/persist/postgres"
	"github.com/fraudguard-labs/fraudguard/service/redis"
	"github.com/fraudguard-labs/fraudguard/service/similarity"
	"github.com/fraudguard-labs/fraudguard/service/task"
	"github.com/fraudguard-labs/fraudguard/util"
	"github.com/fraudguard-labs/fraudguard/validate"
)

// Init initializes the server
func Init() {
	setDefaults()

	initLogger()
	initSentry()

	router := CoreInit(context.Background(), postgres.NewClient())

	http.Handle("/", router)
}

// CoreInit initializes core server functionality. This is abstracted
// so the test server can also utilize it
func CoreInit(ctx context.Context, db *sql.DB) *gin.Engine {
	logger.For(ctx).Info("initializing server...")

	if env.GetString(ctx, "ENV") != "production" {
		gin.SetMode(gin.DebugMode)
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.Sentry(true), middleware.HandleCORS(), middleware.ErrLogger(), middleware.Deadline())

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		logger.For(ctx).Info("registering validation")
		validate.RegisterCustomValidators(v)
	}

	dimension := env.GetInt(ctx, "EMBEDDING_DIMENSION")
	index, err := similarity.NewPostgresIndex(ctx, db, dimension)
	if err != nil {
		panic(err)
	}

	providers := fraud.Providers{Index: index}
	if client := ai.NewClient(ctx); client != nil {
		providers.Vision = client
		providers.Text = client
		providers.Embed = client
	}

	api := &nftservice.API{
		Users:    postgres.NewUserRepository(db),
		NFTs:     postgres.NewNFTRepository(db),
		Listings: postgres.NewListingRepository(db),
		Analyzer: fraud.NewAnalyzer(providers, fraud.ConfigFromEnv(ctx)),
		Index:    index,
		Tasks:    task.NewFromEnv(ctx),
	}

	return handlersInit(router, api, redis.NewCache(ctx))
}

func setDefaults() {
	viper.SetDefault("ENV", "local")
	viper.SetDefault("API_HOST", "0.0.0.0")
	viper.SetDefault("API_PORT", 8000)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("FRAUD_CONFIDENCE_THRESHOLD", 0.7)
	viper.SetDefault("IMAGE_SIMILARITY_THRESHOLD", 0.85)
	viper.SetDefault("EMBEDDING_DIMENSION", 768)
	viper.SetDefault("PROVIDER_MAX_CONCURRENT", 16)
	viper.SetDefault("TASK_QUEUE_SIZE", 256)
	viper.SetDefault("MAX_IMAGE_SIZE_MB", 10)
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("OPENAI_TEXT_MODEL", "")
	viper.SetDefault("OPENAI_VISION_MODEL", "")
	viper.SetDefault("OPENAI_EMBEDDING_MODEL", "")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("SENTRY_DSN", "")
	viper.SetDefault("VERSION", "")

	if viper.GetString("ENV") == "local" {
		viper.SetDefault("POSTGRES_HOST", "0.0.0.0")
		viper.SetDefault("POSTGRES_PORT", 5432)
		viper.SetDefault("POSTGRES_USER", "postgres")
		viper.SetDefault("POSTGRES_PASSWORD", "")
		viper.SetDefault("POSTGRES_DB", "postgres")
	}

	viper.AutomaticEnv()

	// Startup dies loudly on missing required config rather than limping
	// along with a broken database connection
	util.MustExist("POSTGRES_HOST")
	util.MustExist("POSTGRES_DB")
	util.MustExist("POSTGRES_USER")
}

func initLogger() {
	logger.SetLoggerOptions(func(l *logrus.Logger) {
		l.SetReportCaller(true)

		if viper.GetString("ENV") != "production" {
			l.SetLevel(logrus.DebugLevel)
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
	})
}

func initSentry() {
	if viper.GetString("ENV") == "local" || viper.GetString("SENTRY_DSN") == "" {
		logger.For(nil).Info("skipping sentry init")
		return
	}

	logger.For(nil).Info("initializing sentry...")

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              viper.GetString("SENTRY_DSN"),
		Environment:      viper.GetString("ENV"),
		TracesSampleRate: viper.GetFloat64("SENTRY_TRACES_SAMPLE_RATE"),
		Release:          viper.GetString("VERSION"),
		AttachStacktrace: true,
	})
	if err != nil {
		logger.For(nil).Fatalf("failed to start sentry: %s", err)
	}
}
