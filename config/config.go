package config

import (
	"strconv"
	"time"
)

// Config aggregates every setting the engine needs at boot. Domain variables
// use the exact names enumerated in the external interface contract (so
// operators coming from the existing reviewer/OCR/blob fleets don't have to
// relearn names); ambient concerns use a FILOT_ prefix via EnvConfig.
type Config struct {
	Queue    QueueConfig
	OCR      OCRConfig
	Scoring  ScoringConfig
	Reviewer ReviewerConfig
	Blob     BlobConfig
	Database DatabaseConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

type QueueConfig struct {
	Prefix   string
	URL      string
	Password string
	TLS      bool
}

type OCRConfig struct {
	Engine          string // "cpu" or "gpu"
	AutoFallback    bool
	GPUConcurrency  int
	GPUMaxRetries   int
	GPUStuckTimeout time.Duration
	GPUReaperPeriod time.Duration
	GPULockTTL      time.Duration
	APIURL          string // black-box recognition backend; see ocr.NewHTTPRecognizeFunc
	APIKey          string
	RequestTimeout  time.Duration
}

type ScoringConfig struct {
	AutoApproveThreshold int // AI_SCORE_THRESHOLD_AUTO_APPROVE, default 85
	AutoRejectThreshold  int // AI_SCORE_THRESHOLD_AUTO_REJECT, default 35
}

// ConservativeThreshold is the fixed post-OCR threshold; it is intentionally
// not configurable (spec.md DESIGN NOTES: "do not guess" at unifying it with
// the configurable pair).
const ConservativeThreshold = 75

type ReviewerConfig struct {
	APIURL        string
	APIKey        string
	CallbackURL   string
	HMACSecret    string
	HMACSecretOld string // one migration window only, see DESIGN.md
}

type BlobConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Bucket      string
	PresignTTL  time.Duration
	UseSSL      bool
}

type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	ConnectTimeout  time.Duration
}

type HTTPConfig struct {
	Addr            string
	ServiceKey      string
	JWTSecret       string
	ShutdownTimeout time.Duration
	RateLimit       float64 // requests/sec per client IP, 0 disables
}

type LogConfig struct {
	Level  string
	Format string
}

// Load resolves Config from the environment, falling back to a default for
// every unset variable. It never fails itself; Validate reports required
// values that are still missing or invalid so the process fails fast with a
// readable message instead of limping along half-configured.
func Load() *Config {
	env := NewEnvConfig("") // domain vars use their historical, unprefixed names
	amb := NewEnvConfig("FILOT")

	cfg := &Config{
		Queue: QueueConfig{
			Prefix:   env.GetString("QUEUE_PREFIX", "filot:ocr:"),
			URL:      env.GetString("QUEUE_URL", "redis://localhost:6379/0"),
			Password: env.GetString("QUEUE_PASSWORD", ""),
			TLS:      env.GetBool("QUEUE_TLS", false),
		},
		OCR: OCRConfig{
			Engine:          env.GetString("OCR_ENGINE", "cpu"),
			AutoFallback:    env.GetBool("OCR_AUTOFALLBACK", true),
			GPUConcurrency:  env.GetInt("OCR_GPU_CONCURRENCY", 1),
			GPUMaxRetries:   env.GetInt("OCR_GPU_MAX_RETRIES", 3),
			GPUStuckTimeout: env.GetDuration("OCR_GPU_STUCK_TIMEOUT", 5*time.Minute),
			GPUReaperPeriod: env.GetDuration("OCR_GPU_REAPER_INTERVAL", 60*time.Second),
			GPULockTTL:      env.GetDuration("OCR_GPU_LOCK_TTL", 10*time.Minute),
			APIURL:          env.GetString("OCR_API_URL", ""),
			APIKey:          env.GetString("OCR_API_KEY", ""),
			RequestTimeout:  env.GetDuration("OCR_REQUEST_TIMEOUT", 30*time.Second),
		},
		Scoring: ScoringConfig{
			AutoApproveThreshold: env.GetInt("AI_SCORE_THRESHOLD_AUTO_APPROVE", 85),
			AutoRejectThreshold:  env.GetInt("AI_SCORE_THRESHOLD_AUTO_REJECT", 35),
		},
		Reviewer: ReviewerConfig{
			APIURL:        env.GetString("REVIEWER_API_URL", ""),
			APIKey:        env.GetString("REVIEWER_API_KEY", ""),
			CallbackURL:   env.GetString("REVIEWER_CALLBACK_URL", ""),
			HMACSecret:    env.GetString("BULI2_HMAC_SECRET", ""),
			HMACSecretOld: env.GetString("BULI2_HMAC_SECRET_LEGACY", ""),
		},
		Blob: BlobConfig{
			Endpoint:   env.GetString("BLOB_ENDPOINT", ""),
			AccessKey:  env.GetString("BLOB_ACCESS_KEY", ""),
			SecretKey:  env.GetString("BLOB_SECRET_KEY", ""),
			Bucket:     env.GetString("BLOB_BUCKET", ""),
			PresignTTL: env.GetDuration("BLOB_PRESIGN_TTL", time.Hour),
			UseSSL:     env.GetBool("BLOB_USE_SSL", true),
		},
		Database: DatabaseConfig{
			DSN:            amb.GetString("DATABASE_URL", "postgres://localhost:5432/filotkyc"),
			MaxConns:       int32(amb.GetInt("DATABASE_MAX_CONNS", 10)),
			ConnectTimeout: amb.GetDuration("DATABASE_CONNECT_TIMEOUT", 10*time.Second),
		},
		HTTP: HTTPConfig{
			Addr:            amb.GetString("HTTP_ADDR", ":8080"),
			ServiceKey:      amb.GetString("SERVICE_KEY", ""),
			JWTSecret:       amb.GetString("JWT_SECRET", ""),
			ShutdownTimeout: amb.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimit:       amb.GetFloat("HTTP_RATE_LIMIT", 0),
		},
		Log: LogConfig{
			Level:  amb.GetString("LOG_LEVEL", "info"),
			Format: amb.GetString("LOG_FORMAT", "text"),
		},
	}

	return cfg
}

// Validate runs the required-field checks the teacher's Validator pattern
// applies at boot; callers should log and exit on error.
func (c *Config) Validate() error {
	v := NewValidator()
	v.RequireOneOf("OCR.Engine", c.OCR.Engine, []string{"cpu", "gpu"})
	v.RequireOneOf("Log.Level", c.Log.Level, []string{"debug", "info", "warn", "error"})
	v.RequirePositiveInt("Scoring.AutoApproveThreshold", c.Scoring.AutoApproveThreshold)
	v.RequirePositiveInt("Scoring.AutoRejectThreshold", c.Scoring.AutoRejectThreshold)
	v.RequireString("Database.DSN", c.Database.DSN)
	v.RequireString("Queue.URL", c.Queue.URL)
	return v.Validate()
}

// RedactedDump returns a loggable snapshot of the resolved configuration
// with secrets masked, for the startup config validation report.
func (c *Config) RedactedDump(mask func(string) string) map[string]string {
	return map[string]string{
		"queue.prefix":            c.Queue.Prefix,
		"queue.url":               c.Queue.URL,
		"queue.password":          mask(c.Queue.Password),
		"ocr.engine":              c.OCR.Engine,
		"ocr.auto_fallback":       boolStr(c.OCR.AutoFallback),
		"ocr.api_url":             c.OCR.APIURL,
		"ocr.api_key":             mask(c.OCR.APIKey),
		"scoring.auto_approve":    intStr(c.Scoring.AutoApproveThreshold),
		"scoring.auto_reject":     intStr(c.Scoring.AutoRejectThreshold),
		"reviewer.api_url":        c.Reviewer.APIURL,
		"reviewer.api_key":        mask(c.Reviewer.APIKey),
		"reviewer.hmac_secret":    mask(c.Reviewer.HMACSecret),
		"reviewer.hmac_secret_old": mask(c.Reviewer.HMACSecretOld),
		"blob.endpoint":           c.Blob.Endpoint,
		"blob.bucket":             c.Blob.Bucket,
		"blob.access_key":         mask(c.Blob.AccessKey),
		"database.dsn":            mask(c.Database.DSN),
		"http.addr":               c.HTTP.Addr,
		"http.service_key":        mask(c.HTTP.ServiceKey),
		"http.jwt_secret":         mask(c.HTTP.JWTSecret),
		"http.rate_limit":         strconv.FormatFloat(c.HTTP.RateLimit, 'f', -1, 64),
		"log.level":               c.Log.Level,
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func intStr(i int) string {
	return strconv.Itoa(i)
}
