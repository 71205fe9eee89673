package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del bot.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	BotToken    string `env:"BOT_TOKEN,required,notEmpty"`
	BotUsername string `env:"BOT_USERNAME" envDefault:"TeraboxLeechBot"`
	OwnerID     int64  `env:"OWNER_ID" envDefault:"0"`

	BackupChannelID    int64         `env:"BACKUP_CHANNEL_ID" envDefault:"0"`
	AutoForwardEnabled bool          `env:"AUTO_FORWARD_ENABLED" envDefault:"true"`
	ForwardTimeout     time.Duration `env:"FORWARD_TIMEOUT" envDefault:"15s"`

	ShortlinkAPIKey string `env:"SHORTLINK_API"`
	ShortlinkURL    string `env:"SHORTLINK_URL"`
	VerifyTutorial  string `env:"VERIFY_TUTORIAL" envDefault:"https://youtube.com/watch?v=example"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"`

	FreeLeechLimit     int           `env:"FREE_LEECH_LIMIT" envDefault:"3"`
	VerifyTokenTimeout time.Duration `env:"VERIFY_TOKEN_TIMEOUT" envDefault:"1h"`
	IssueRateWindow    time.Duration `env:"ISSUE_RATE_WINDOW" envDefault:"10m"`
	IssueRateMax       int           `env:"ISSUE_RATE_MAX" envDefault:"5"`

	TokenSweepSchedule string        `env:"TOKEN_SWEEP_SCHEDULE" envDefault:"@hourly"`
	TokenRetention     time.Duration `env:"TOKEN_RETENTION" envDefault:"24h"`

	AdminJWTSecret string        `env:"ADMIN_JWT_SECRET"`
	AdminJWTTTL    time.Duration `env:"ADMIN_JWT_TTL" envDefault:"24h"`

	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPass      string `env:"SMTP_PASS"`
	SMTPFrom      string `env:"SMTP_FROM"`
	SMTPFromName  string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS    bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	OperatorEmail string `env:"OPERATOR_EMAIL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

var (
	ErrInvalidFreeLimit      = errors.New("FREE_LEECH_LIMIT must be positive")
	ErrInvalidTokenTimeout   = errors.New("VERIFY_TOKEN_TIMEOUT must be positive")
	ErrInvalidForwardTimeout = errors.New("FORWARD_TIMEOUT must be positive")
)

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa los valores que consume el núcleo del bot.
func (c *Config) Validate() error {
	if c.FreeLeechLimit <= 0 {
		return ErrInvalidFreeLimit
	}
	if c.VerifyTokenTimeout <= 0 {
		return ErrInvalidTokenTimeout
	}
	if c.ForwardTimeout <= 0 {
		return ErrInvalidForwardTimeout
	}
	return nil
}

// ForwardingActive indica si hay un canal de respaldo configurado y el auto-forward activo.
func (c *Config) ForwardingActive() bool {
	return c.AutoForwardEnabled && c.BackupChannelID != 0
}

// ShortlinkConfigured indica si el servicio de shortlinks tiene URL y api key.
func (c *Config) ShortlinkConfigured() bool {
	return c.ShortlinkAPIKey != "" && c.ShortlinkURL != ""
}

// AdminTokenConfig es el subconjunto que necesita cmd/admintoken; no exige base de datos ni bot.
type AdminTokenConfig struct {
	OwnerID        int64         `env:"OWNER_ID,required,notEmpty"`
	AdminJWTSecret string        `env:"ADMIN_JWT_SECRET,required,notEmpty"`
	AdminJWTTTL    time.Duration `env:"ADMIN_JWT_TTL" envDefault:"24h"`
}

func LoadAdminTokenConfig() (*AdminTokenConfig, error) {
	var cfg AdminTokenConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
