package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all the configuration for the application.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Google       OAuthClientConfig
	GitHub       OAuthClientConfig
	Microsoft    OAuthClientConfig
	SMTP         SMTPConfig
	Verification VerificationConfig
	MFA          MFAConfig
	DeviceTrust  DeviceTrustConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	Sweep        SweepConfig
	Brand        BrandConfig
	JWTSecret    string `mapstructure:"jwtsecret"`
}

// ServerConfig holds the server configuration.
type ServerConfig struct {
	Port        string   `mapstructure:"port"`
	Env         string   `mapstructure:"env"`
	SiteURL     string   `mapstructure:"siteurl"`
	CORSOrigins []string `mapstructure:"corsorigins"`
}

// DatabaseConfig holds the database configuration.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig holds the Redis configuration.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// OAuthClientConfig is shared by every SSO provider.
type OAuthClientConfig struct {
	ClientID     string `mapstructure:"clientid"`
	ClientSecret string `mapstructure:"clientsecret"`
	RedirectURL  string `mapstructure:"redirecturl"`
	Tenant       string `mapstructure:"tenant"`
}

type SMTPConfig struct {
	From     string `mapstructure:"from"`
	Password string `mapstructure:"password"`
	Username string `mapstructure:"username"`
	Port     int    `mapstructure:"port"`
	Host     string `mapstructure:"host"`
}

// VerificationConfig controls email one-time codes.
type VerificationConfig struct {
	TTLMinutes            int `mapstructure:"ttlminutes"`
	ResendCooldownSeconds int `mapstructure:"resendcooldownseconds"`
	MaxAttempts           int `mapstructure:"maxattempts"`
	CodeLength            int `mapstructure:"codelength"`
}

// MFAConfig controls TOTP enrollment.
type MFAConfig struct {
	Issuer          string `mapstructure:"issuer"`
	EncryptionKey   string `mapstructure:"encryptionkey"`
	BackupCodeCount int    `mapstructure:"backupcodecount"`
}

type DeviceTrustConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SessionConfig struct {
	SlidingTTL  time.Duration `mapstructure:"slidingttl"`
	AbsoluteTTL time.Duration `mapstructure:"absolutettl"`
	CookieName  string        `mapstructure:"cookiename"`
}

// RateLimitConfig bounds code verification attempts per key.
type RateLimitConfig struct {
	VerifyMax    int           `mapstructure:"verifymax"`
	VerifyWindow time.Duration `mapstructure:"verifywindow"`
	SignupLock   time.Duration `mapstructure:"signuplock"`
}

// SweepConfig controls the stale unconfirmed account sweeper.
type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	StaleAge time.Duration `mapstructure:"staleage"`
}

// BrandConfig is the fallback brand used when a site has no branding of its own.
type BrandConfig struct {
	FromEmail    string `mapstructure:"fromemail"`
	FromName     string `mapstructure:"fromname"`
	SupportEmail string `mapstructure:"supportemail"`
	LogoURL      string `mapstructure:"logourl"`
	PrimaryColor string `mapstructure:"primarycolor"`
	Domain       string `mapstructure:"domain"`
}

var envBindings = map[string]string{
	"server.port":                        "SERVER_PORT",
	"server.env":                         "SERVER_ENV",
	"server.siteurl":                     "SITE_URL",
	"server.corsorigins":                 "CORS_ORIGINS",
	"database.url":                       "DATABASE_URL",
	"redis.url":                          "REDIS_URL",
	"jwtsecret":                          "JWT_SECRET",
	"google.clientid":                    "GOOGLE_CLIENT_ID",
	"google.clientsecret":                "GOOGLE_CLIENT_SECRET",
	"google.redirecturl":                 "GOOGLE_REDIRECT_URL",
	"github.clientid":                    "GITHUB_CLIENT_ID",
	"github.clientsecret":                "GITHUB_CLIENT_SECRET",
	"github.redirecturl":                 "GITHUB_REDIRECT_URL",
	"microsoft.clientid":                 "MICROSOFT_CLIENT_ID",
	"microsoft.clientsecret":             "MICROSOFT_CLIENT_SECRET",
	"microsoft.redirecturl":              "MICROSOFT_REDIRECT_URL",
	"microsoft.tenant":                   "MICROSOFT_TENANT",
	"smtp.from":                          "SMTP_FROM",
	"smtp.password":                      "SMTP_PASSWORD",
	"smtp.username":                      "SMTP_USERNAME",
	"smtp.port":                          "SMTP_PORT",
	"smtp.host":                          "SMTP_HOST",
	"verification.ttlminutes":            "OTP_TTL_MINUTES",
	"verification.resendcooldownseconds": "OTP_RESEND_COOLDOWN_SECONDS",
	"verification.maxattempts":           "OTP_MAX_ATTEMPTS",
	"verification.codelength":            "OTP_CODE_LENGTH",
	"mfa.issuer":                         "MFA_ISSUER",
	"mfa.encryptionkey":                  "MFA_ENCRYPTION_KEY",
	"mfa.backupcodecount":                "MFA_BACKUP_CODE_COUNT",
	"devicetrust.ttl":                    "DEVICE_TRUST_TTL",
	"session.slidingttl":                 "SESSION_SLIDING_TTL",
	"session.absolutettl":                "SESSION_ABSOLUTE_TTL",
	"session.cookiename":                 "SESSION_COOKIE_NAME",
	"ratelimit.verifymax":                "RATE_LIMIT_VERIFY_MAX",
	"ratelimit.verifywindow":             "RATE_LIMIT_VERIFY_WINDOW",
	"ratelimit.signuplock":               "SIGNUP_LOCK_TTL",
	"sweep.interval":                     "SWEEP_INTERVAL",
	"sweep.staleage":                     "SWEEP_STALE_AGE",
	"brand.fromemail":                    "BRAND_FROM_EMAIL",
	"brand.fromname":                     "BRAND_FROM_NAME",
	"brand.supportemail":                 "BRAND_SUPPORT_EMAIL",
	"brand.logourl":                      "BRAND_LOGO_URL",
	"brand.primarycolor":                 "BRAND_PRIMARY_COLOR",
	"brand.domain":                       "BRAND_DOMAIN",
}

// Load creates a new Config object from environment variables.
func Load() *Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Load .env into process environment for BindEnv to work with file-based envs
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️ godotenv could not load .env: %v", err)
	}

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("❌ Error reading config file: %s", err)
		}
		log.Printf("⚠️ .env file not found, relying on environment variables")
	} else {
		log.Printf("ℹ️ Using config file: %s", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		log.Fatalf("❌ Unable to decode config into struct: %v", err)
	}

	log.Println("✅ Configuration loaded successfully")
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	// CORS_ORIGINS arrives as a comma separated string from the environment.
	cfg.Server.CORSOrigins = splitList(strings.Join(cfg.Server.CORSOrigins, ","))
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.Server.SiteURL == "" {
		cfg.Server.SiteURL = "http://localhost:5173"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{cfg.Server.SiteURL}
	}
	if cfg.Verification.TTLMinutes <= 0 {
		cfg.Verification.TTLMinutes = 15
	}
	if cfg.Verification.ResendCooldownSeconds <= 0 {
		cfg.Verification.ResendCooldownSeconds = 60
	}
	if cfg.Verification.MaxAttempts <= 0 {
		cfg.Verification.MaxAttempts = 5
	}
	if cfg.Verification.CodeLength <= 0 {
		cfg.Verification.CodeLength = 6
	}
	if cfg.MFA.Issuer == "" {
		cfg.MFA.Issuer = "SiteBuilder"
	}
	if cfg.MFA.BackupCodeCount <= 0 {
		cfg.MFA.BackupCodeCount = 10
	}
	if cfg.DeviceTrust.TTL <= 0 {
		cfg.DeviceTrust.TTL = 90 * 24 * time.Hour
	}
	if cfg.Session.SlidingTTL <= 0 {
		cfg.Session.SlidingTTL = 7 * 24 * time.Hour
	}
	if cfg.Session.AbsoluteTTL <= 0 {
		cfg.Session.AbsoluteTTL = 30 * 24 * time.Hour
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "site_session"
	}
	if cfg.RateLimit.VerifyMax <= 0 {
		cfg.RateLimit.VerifyMax = 10
	}
	if cfg.RateLimit.VerifyWindow <= 0 {
		cfg.RateLimit.VerifyWindow = 15 * time.Minute
	}
	if cfg.RateLimit.SignupLock <= 0 {
		cfg.RateLimit.SignupLock = 30 * time.Second
	}
	if cfg.Sweep.Interval <= 0 {
		cfg.Sweep.Interval = time.Hour
	}
	if cfg.Sweep.StaleAge <= 0 {
		cfg.Sweep.StaleAge = 24 * time.Hour
	}
	if cfg.Brand.FromName == "" {
		cfg.Brand.FromName = "SiteBuilder"
	}
	if cfg.Brand.FromEmail == "" {
		cfg.Brand.FromEmail = cfg.SMTP.From
	}
	if cfg.Brand.SupportEmail == "" {
		cfg.Brand.SupportEmail = cfg.Brand.FromEmail
	}
	if cfg.Brand.PrimaryColor == "" {
		cfg.Brand.PrimaryColor = "#f97316"
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
