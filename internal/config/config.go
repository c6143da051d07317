package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimit is a token bucket definition for one route family.
// Capacity is the burst size, RefillPerSec the sustained rate.
type RateLimit struct {
	Capacity     int
	RefillPerSec float64
}

// Provider holds the connection settings for one upstream provider.
// The generic slot name (provider_a..provider_e) is the only identifier
// that ever leaves the process.
type Provider struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Route families used by the ingress rate limiter and the async poll
// deadlines. Names are part of the status endpoint's ?service= values.
const (
	FamilyImageSync = "image_sync"
	FamilyModel3D   = "model_3d"
	FamilyRefine3D  = "refine_3d"
	FamilyUpscale   = "upscale"
	FamilyDownscale = "downscale"
)

// Queue names with their configured worker concurrency.
const (
	QueueDefault     = "default"
	QueueAsyncOther  = "async_other"
	QueueAsyncRefine = "async_refine"
)

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL    string
	MigrateOnStart bool

	RedisURL string

	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string

	RegistrationSecret string
	StorefrontSuffix   string

	CreditsURL string

	TestAssetsMode bool

	Providers map[string]Provider

	QueueConcurrency map[string]int

	RateLimits map[string]RateLimit

	// PollDeadlines bound how long an async task may sit in processing
	// before the status endpoint marks it provider_timeout.
	PollDeadlines map[string]time.Duration

	WorkerRetryMax int
}

// Load reads configuration from the environment with sane dev defaults.
// Every value is overridable; limits are data, not code.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("ENV", "dev")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("STOREFRONT_SUFFIX", "myshop.example.com")
	v.SetDefault("TEST_ASSETS_MODE", false)
	v.SetDefault("WORKER_RETRY_MAX", 3)

	v.SetDefault("QUEUE_DEFAULT_CONCURRENCY", 2)
	v.SetDefault("QUEUE_ASYNC_OTHER_CONCURRENCY", 10)
	v.SetDefault("QUEUE_ASYNC_REFINE_CONCURRENCY", 5)

	// Per-family ingress limits: burst capacity and refill per second.
	v.SetDefault("RATELIMIT_IMAGE_SYNC_CAPACITY", 10)
	v.SetDefault("RATELIMIT_IMAGE_SYNC_REFILL", 1.0)
	v.SetDefault("RATELIMIT_MODEL_3D_CAPACITY", 5)
	v.SetDefault("RATELIMIT_MODEL_3D_REFILL", 0.5)
	v.SetDefault("RATELIMIT_REFINE_3D_CAPACITY", 3)
	v.SetDefault("RATELIMIT_REFINE_3D_REFILL", 0.25)
	v.SetDefault("RATELIMIT_UPSCALE_CAPACITY", 5)
	v.SetDefault("RATELIMIT_UPSCALE_REFILL", 0.5)
	v.SetDefault("RATELIMIT_DOWNSCALE_CAPACITY", 20)
	v.SetDefault("RATELIMIT_DOWNSCALE_REFILL", 2.0)

	v.SetDefault("POLL_DEADLINE_MODEL_3D", "15m")
	v.SetDefault("POLL_DEADLINE_REFINE_3D", "30m")

	v.SetDefault("PROVIDER_TIMEOUT", "60s")

	cfg := &Config{
		Env:      v.GetString("ENV"),
		HTTPAddr: v.GetString("HTTP_ADDR"),

		DatabaseURL:    v.GetString("DATABASE_URL"),
		MigrateOnStart: v.GetBool("MIGRATE_ON_START"),

		RedisURL: v.GetString("REDIS_URL"),

		S3Endpoint:      v.GetString("S3_ENDPOINT"),
		S3Region:        v.GetString("S3_REGION"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3AccessKey:     v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:     v.GetString("S3_SECRET_KEY"),
		S3PublicBaseURL: v.GetString("S3_PUBLIC_BASE_URL"),

		RegistrationSecret: v.GetString("REGISTRATION_SECRET"),
		StorefrontSuffix:   v.GetString("STOREFRONT_SUFFIX"),

		CreditsURL: v.GetString("CREDITS_URL"),

		TestAssetsMode: v.GetBool("TEST_ASSETS_MODE"),

		WorkerRetryMax: v.GetInt("WORKER_RETRY_MAX"),

		QueueConcurrency: map[string]int{
			QueueDefault:     v.GetInt("QUEUE_DEFAULT_CONCURRENCY"),
			QueueAsyncOther:  v.GetInt("QUEUE_ASYNC_OTHER_CONCURRENCY"),
			QueueAsyncRefine: v.GetInt("QUEUE_ASYNC_REFINE_CONCURRENCY"),
		},

		RateLimits: map[string]RateLimit{
			FamilyImageSync: {v.GetInt("RATELIMIT_IMAGE_SYNC_CAPACITY"), v.GetFloat64("RATELIMIT_IMAGE_SYNC_REFILL")},
			FamilyModel3D:   {v.GetInt("RATELIMIT_MODEL_3D_CAPACITY"), v.GetFloat64("RATELIMIT_MODEL_3D_REFILL")},
			FamilyRefine3D:  {v.GetInt("RATELIMIT_REFINE_3D_CAPACITY"), v.GetFloat64("RATELIMIT_REFINE_3D_REFILL")},
			FamilyUpscale:   {v.GetInt("RATELIMIT_UPSCALE_CAPACITY"), v.GetFloat64("RATELIMIT_UPSCALE_REFILL")},
			FamilyDownscale: {v.GetInt("RATELIMIT_DOWNSCALE_CAPACITY"), v.GetFloat64("RATELIMIT_DOWNSCALE_REFILL")},
		},

		PollDeadlines: map[string]time.Duration{
			FamilyModel3D:  v.GetDuration("POLL_DEADLINE_MODEL_3D"),
			FamilyRefine3D: v.GetDuration("POLL_DEADLINE_REFINE_3D"),
		},

		Providers: map[string]Provider{},
	}

	defaultTimeout := v.GetDuration("PROVIDER_TIMEOUT")
	for _, slot := range []string{"A", "B", "C", "D", "E"} {
		name := "provider_" + strings.ToLower(slot)
		p := Provider{
			BaseURL: v.GetString("PROVIDER_" + slot + "_URL"),
			APIKey:  v.GetString("PROVIDER_" + slot + "_KEY"),
			Timeout: defaultTimeout,
		}
		if d := v.GetString("PROVIDER_" + slot + "_TIMEOUT"); d != "" {
			if parsed, err := time.ParseDuration(d); err == nil {
				p.Timeout = parsed
			}
		}
		cfg.Providers[name] = p
	}

	return cfg, nil
}
