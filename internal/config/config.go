package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config собирает все настройки процесса: БД, транспорт, брокер, почта и фоновые задачи.
type Config struct {
	DB      *DBConfig
	Server  ServerConfig
	Auth    AuthConfig
	Booking BookingConfig
	Slots   SlotsConfig
	Jobs    JobsConfig
	NATS    NATSConfig
	Redis   RedisConfig
	Mail    MailConfig
	Notify  NotifyConfig
	Log     LogConfig
}

type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	// Лимит публичных запросов (бронь, перенос по токену) на IP за окно; 0: без лимита.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

type AuthConfig struct {
	JWTSecret string
	JWTTTL    time.Duration
}

type BookingConfig struct {
	TokenTTL           time.Duration
	ClientCancelCutoff time.Duration
	DefaultSlotMinutes int
}

type SlotsConfig struct {
	HorizonDays     int
	RefreshInterval time.Duration
	CacheMaxAge     time.Duration
	LeaseTTL        time.Duration
}

type JobsConfig struct {
	TokenSweepInterval time.Duration
	TokenRetention     time.Duration
	ReminderLead       time.Duration
	ReminderInterval   time.Duration
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	QueueGroup    string
}

type RedisConfig struct {
	URL string
}

// MailConfig: Provider = dev | smtp | mailersend.
type MailConfig struct {
	Provider         string
	FromName         string
	FromEmail        string
	MailerSendAPIKey string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	SMTPUseTLS       bool
	PublicBaseURL    string
}

type NotifyConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

type LogConfig struct {
	Level string
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbCfg, err := LoadDBConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DB: dbCfg,
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":50051"),
			ReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTTTL:    getEnvDuration("JWT_TTL", 12*time.Hour),
		},
		Booking: BookingConfig{
			TokenTTL:           getEnvDuration("TOKEN_TTL", 10*time.Minute),
			ClientCancelCutoff: getEnvDuration("CLIENT_CANCEL_CUTOFF", 0),
			DefaultSlotMinutes: getEnvInt("BOOKING_DEFAULT_SLOT_MINUTES", 30),
		},
		Slots: SlotsConfig{
			HorizonDays:     getEnvInt("SLOTS_HORIZON_DAYS", 30),
			RefreshInterval: getEnvDuration("SLOTS_REFRESH_INTERVAL", 15*time.Minute),
			CacheMaxAge:     getEnvDuration("SLOTS_CACHE_MAX_AGE", 30*time.Minute),
			LeaseTTL:        getEnvDuration("SLOTS_LEASE_TTL", 10*time.Minute),
		},
		Jobs: JobsConfig{
			TokenSweepInterval: getEnvDuration("TOKEN_SWEEP_INTERVAL", time.Hour),
			TokenRetention:     getEnvDuration("TOKEN_RETENTION", 24*time.Hour),
			ReminderLead:       getEnvDuration("REMINDER_LEAD", 24*time.Hour),
			ReminderInterval:   getEnvDuration("REMINDER_INTERVAL", 5*time.Minute),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "appointment"),
			QueueGroup:    getEnv("NATS_QUEUE_GROUP", "notify-dispatcher"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Mail: MailConfig{
			Provider:         strings.ToLower(getEnv("MAIL_PROVIDER", "dev")),
			FromName:         getEnv("MAIL_FROM_NAME", "Appointments"),
			FromEmail:        getEnv("MAIL_FROM_EMAIL", "no-reply@example.com"),
			MailerSendAPIKey: getEnv("MAILERSEND_API_KEY", ""),
			SMTPHost:         getEnv("SMTP_HOST", "localhost"),
			SMTPPort:         getEnvInt("SMTP_PORT", 1025),
			SMTPUser:         getEnv("SMTP_USER", ""),
			SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
			SMTPUseTLS:       getEnvBool("SMTP_USE_TLS", false),
			PublicBaseURL:    strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		Notify: NotifyConfig{
			MaxAttempts: getEnvInt("NOTIFY_MAX_ATTEMPTS", 5),
			BackoffBase: getEnvDuration("NOTIFY_BACKOFF_BASE", time.Second),
			BackoffMax:  getEnvDuration("NOTIFY_BACKOFF_MAX", time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Booking.TokenTTL <= 0 {
		return fmt.Errorf("invalid config: TOKEN_TTL must be positive")
	}
	if c.Booking.DefaultSlotMinutes < 5 || c.Booking.DefaultSlotMinutes > 120 || c.Booking.DefaultSlotMinutes%5 != 0 {
		return fmt.Errorf("invalid config: BOOKING_DEFAULT_SLOT_MINUTES must be 5..120 in steps of 5")
	}
	if c.Slots.HorizonDays <= 0 {
		return fmt.Errorf("invalid config: SLOTS_HORIZON_DAYS must be positive")
	}
	switch c.Mail.Provider {
	case "dev", "smtp":
	case "mailersend":
		if c.Mail.MailerSendAPIKey == "" {
			return fmt.Errorf("invalid config: MAILERSEND_API_KEY is required for mailersend provider")
		}
	default:
		return fmt.Errorf("invalid config: unknown MAIL_PROVIDER %q", c.Mail.Provider)
	}
	return nil
}

// RequireJWTSecret нужен командам, которые принимают или выдают токены владельцев.
func (c *Config) RequireJWTSecret() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("invalid config: JWT_SECRET must be at least 16 characters")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
