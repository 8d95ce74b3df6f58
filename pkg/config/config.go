package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	AI            AIConfig
	Transcription TranscriptionConfig
	Mail          MailConfig
	Storage       StorageConfig
	Files         FilesConfig
	Uploads       UploadsConfig
	Slides        SlidesConfig
	Realtime      RealtimeConfig
	Cron          CronConfig
	Verification  VerificationConfig
	Marketplace   MarketplaceConfig
}

type DatabaseConfig struct {
	// URL, when set, takes precedence over the discrete fields.
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	AutoMigrate     bool
	ConnectAttempts int
}

type RedisConfig struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AIConfig points at an OpenAI-compatible chat completions API (Groq by default).
type AIConfig struct {
	BaseURL         string
	APIKey          string
	ChatModel       string
	ModerationModel string
	Timeout         time.Duration
}

// TranscriptionConfig drives the YouTube download + speech-to-text pipeline.
type TranscriptionConfig struct {
	YTDLPPath       string
	WhisperModel    string
	WorkDir         string
	MaxDuration     time.Duration
	PipelineTimeout time.Duration
}

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

// StorageConfig selects the object storage backend for uploads and generated artifacts.
type StorageConfig struct {
	Driver        string
	LocalDir      string
	PublicBaseURL string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3CDNURL      string
}

// FilesConfig governs signed download links.
type FilesConfig struct {
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

type UploadsConfig struct {
	MaxFileSizeBytes int64
}

// SlidesConfig tunes slide rendering.
type SlidesConfig struct {
	FontPath    string
	Workers     int
	Concurrency int
	Width       int
	Height      int
	StuckAfter  time.Duration
}

type RealtimeConfig struct {
	AllowedOrigins []string
	Channel        string
	SendBuffer     int
	UseRedis       bool
}

// CronConfig defines schedules for maintenance jobs (6-field, seconds precision).
type CronConfig struct {
	Enabled            bool
	CleanupSchedule    string
	StuckJobsSchedule  string
	TokenPurgeSchedule string
	ExportTTL          time.Duration
}

type VerificationConfig struct {
	CodeTTL time.Duration
}

type MarketplaceConfig struct {
	InitialCredits float64
	LeaderboardTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:             v.GetString("DATABASE_URL"),
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
		ConnectAttempts: v.GetInt("DB_CONNECT_ATTEMPTS"),
	}

	cfg.Redis = RedisConfig{
		URL:      v.GetString("REDIS_URL"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 30*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.AI = AIConfig{
		BaseURL:         v.GetString("AI_BASE_URL"),
		APIKey:          v.GetString("AI_API_KEY"),
		ChatModel:       v.GetString("AI_CHAT_MODEL"),
		ModerationModel: v.GetString("AI_MODERATION_MODEL"),
		Timeout:         parseDuration(v.GetString("AI_TIMEOUT"), 60*time.Second),
	}

	cfg.Transcription = TranscriptionConfig{
		YTDLPPath:       v.GetString("YTDLP_PATH"),
		WhisperModel:    v.GetString("WHISPER_MODEL"),
		WorkDir:         v.GetString("TRANSCRIPTION_WORK_DIR"),
		MaxDuration:     parseDuration(v.GetString("VIDEO_MAX_DURATION"), 30*time.Minute),
		PipelineTimeout: parseDuration(v.GetString("VIDEO_PIPELINE_TIMEOUT"), 300*time.Second),
	}

	cfg.Mail = MailConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
		AppURL:   v.GetString("APP_URL"),
	}

	cfg.Storage = StorageConfig{
		Driver:        v.GetString("STORAGE_DRIVER"),
		LocalDir:      v.GetString("STORAGE_LOCAL_DIR"),
		PublicBaseURL: strings.TrimRight(v.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
		S3Bucket:      v.GetString("S3_BUCKET"),
		S3Region:      v.GetString("S3_REGION"),
		S3Endpoint:    v.GetString("S3_ENDPOINT"),
		S3AccessKey:   v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:   v.GetString("S3_SECRET_KEY"),
		S3CDNURL:      strings.TrimRight(v.GetString("S3_CDN_URL"), "/"),
	}

	cfg.Files = FilesConfig{
		SignedURLSecret: v.GetString("FILES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("FILES_SIGNED_URL_TTL"), 15*time.Minute),
	}

	maxUpload := v.GetInt64("UPLOAD_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 25 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{MaxFileSizeBytes: maxUpload}

	cfg.Slides = SlidesConfig{
		FontPath:    v.GetString("SLIDES_FONT_PATH"),
		Workers:     v.GetInt("SLIDES_WORKERS"),
		Concurrency: v.GetInt("SLIDES_RENDER_CONCURRENCY"),
		Width:       v.GetInt("SLIDES_WIDTH"),
		Height:      v.GetInt("SLIDES_HEIGHT"),
		StuckAfter:  parseDuration(v.GetString("SLIDES_STUCK_AFTER"), 30*time.Minute),
	}

	realtimeOrigins := splitAndTrim(v.GetString("REALTIME_ALLOWED_ORIGINS"))
	if len(realtimeOrigins) == 0 {
		realtimeOrigins = cfg.CORS.AllowedOrigins
	}
	cfg.Realtime = RealtimeConfig{
		AllowedOrigins: realtimeOrigins,
		Channel:        v.GetString("REALTIME_CHANNEL"),
		SendBuffer:     v.GetInt("REALTIME_SEND_BUFFER"),
		UseRedis:       v.GetBool("REALTIME_USE_REDIS"),
	}

	cfg.Cron = CronConfig{
		Enabled:            v.GetBool("ENABLE_CRON"),
		CleanupSchedule:    v.GetString("CRON_CLEANUP_SCHEDULE"),
		StuckJobsSchedule:  v.GetString("CRON_STUCK_JOBS_SCHEDULE"),
		TokenPurgeSchedule: v.GetString("CRON_TOKEN_PURGE_SCHEDULE"),
		ExportTTL:          parseDuration(v.GetString("EXPORT_TTL"), 24*time.Hour),
	}

	cfg.Verification = VerificationConfig{
		CodeTTL: parseDuration(v.GetString("VERIFICATION_CODE_TTL"), 10*time.Minute),
	}

	cfg.Marketplace = MarketplaceConfig{
		InitialCredits: v.GetFloat64("MARKETPLACE_INITIAL_CREDITS"),
		LeaderboardTTL: parseDuration(v.GetString("MARKETPLACE_LEADERBOARD_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8000)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "peerlearn")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_CONNECT_ATTEMPTS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "30m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "peerlearn-api")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AI_BASE_URL", "https://api.groq.com/openai/v1")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_CHAT_MODEL", "llama-3.1-8b-instant")
	v.SetDefault("AI_MODERATION_MODEL", "llama3-8b-8192")
	v.SetDefault("AI_TIMEOUT", "60s")

	v.SetDefault("YTDLP_PATH", "yt-dlp")
	v.SetDefault("WHISPER_MODEL", "whisper-large-v3")
	v.SetDefault("TRANSCRIPTION_WORK_DIR", "")
	v.SetDefault("VIDEO_MAX_DURATION", "30m")
	v.SetDefault("VIDEO_PIPELINE_TIMEOUT", "300s")

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "noreply@peerlearn.app")
	v.SetDefault("APP_URL", "http://localhost:3000")

	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_LOCAL_DIR", "./static")
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "/static")
	v.SetDefault("S3_REGION", "us-east-1")

	v.SetDefault("FILES_SIGNED_URL_SECRET", "dev_files_secret")
	v.SetDefault("FILES_SIGNED_URL_TTL", "15m")
	v.SetDefault("UPLOAD_MAX_FILE_SIZE", 25*1024*1024)

	v.SetDefault("SLIDES_FONT_PATH", "")
	v.SetDefault("SLIDES_WORKERS", 2)
	v.SetDefault("SLIDES_RENDER_CONCURRENCY", 4)
	v.SetDefault("SLIDES_WIDTH", 1280)
	v.SetDefault("SLIDES_HEIGHT", 720)
	v.SetDefault("SLIDES_STUCK_AFTER", "30m")

	v.SetDefault("REALTIME_ALLOWED_ORIGINS", "")
	v.SetDefault("REALTIME_CHANNEL", "peerlearn:realtime")
	v.SetDefault("REALTIME_SEND_BUFFER", 100)
	v.SetDefault("REALTIME_USE_REDIS", true)

	v.SetDefault("ENABLE_CRON", true)
	v.SetDefault("CRON_CLEANUP_SCHEDULE", "0 */30 * * * *")
	v.SetDefault("CRON_STUCK_JOBS_SCHEDULE", "0 */10 * * * *")
	v.SetDefault("CRON_TOKEN_PURGE_SCHEDULE", "0 15 * * * *")
	v.SetDefault("EXPORT_TTL", "24h")

	v.SetDefault("VERIFICATION_CODE_TTL", "10m")

	v.SetDefault("MARKETPLACE_INITIAL_CREDITS", 100)
	v.SetDefault("MARKETPLACE_LEADERBOARD_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
