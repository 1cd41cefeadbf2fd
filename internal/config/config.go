package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultServerPort       = "8080"
	defaultLogLevel         = "info"
	defaultWhatsAppAPIBase  = "https://graph.facebook.com/v17.0"
	defaultExtractionURL    = "https://ai.gateway.lovable.dev/v1"
	defaultExtractionModel  = "google/gemini-2.5-flash"
	defaultGeminiModel      = "gemini-2.5-flash"
	defaultOutboundTimeout  = 8 * time.Second
	defaultCodeTTL          = 10 * time.Minute
	defaultIssueCooldown    = 60 * time.Second
	defaultShutdownTimeout  = 5 * time.Second
	defaultFallbackCategory = "Other"
	defaultUncategorized    = "Outros"

	ProviderGateway = "gateway"
	ProviderGemini  = "gemini"
)

// WhatsAppConfig holds the messaging provider credentials.
type WhatsAppConfig struct {
	APIBase       string
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	AppSecret     string // optional, enables X-Hub-Signature-256 checks
	Timeout       time.Duration
}

// ExtractionConfig selects and configures the language-understanding backend.
type ExtractionConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// Config is the full runtime configuration. It is passed explicitly to every
// component constructor.
type Config struct {
	DB               DBConfig
	ServerPort       string
	LogLevel         string
	JWTSecret        string
	RedisURL         string
	CORSOrigin       string
	IssueCooldown    time.Duration
	CodeTTL          time.Duration
	ShutdownTimeout  time.Duration
	FallbackCategory string
	Uncategorized    string
	Location         *time.Location
	WhatsApp         WhatsAppConfig
	Extraction       ExtractionConfig
}

// Load reads the configuration from environment variables. Call
// godotenv.Load beforehand to pick up a local .env file.
func Load() (*Config, error) {
	dbCfg, err := LoadDBConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DB:               *dbCfg,
		ServerPort:       getEnv("SERVER_PORT", defaultServerPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		JWTSecret:        os.Getenv("JWT_SECRET_KEY"),
		RedisURL:         os.Getenv("REDIS_URL"),
		CORSOrigin:       getEnv("CORS_ALLOWED_ORIGIN", "*"),
		FallbackCategory: getEnv("CATEGORY_FALLBACK_NAME", defaultFallbackCategory),
		Uncategorized:    getEnv("UNCATEGORIZED_LABEL", defaultUncategorized),
		WhatsApp: WhatsAppConfig{
			APIBase:       strings.TrimRight(getEnv("WHATSAPP_API_BASE", defaultWhatsAppAPIBase), "/"),
			AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
			AppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
		},
		Extraction: ExtractionConfig{
			Provider: strings.ToLower(getEnv("EXTRACTION_PROVIDER", ProviderGateway)),
			APIKey:   os.Getenv("EXTRACTION_API_KEY"),
			BaseURL:  strings.TrimRight(getEnv("EXTRACTION_BASE_URL", defaultExtractionURL), "/"),
		},
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"ISSUE_COOLDOWN", defaultIssueCooldown, &cfg.IssueCooldown},
		{"CODE_TTL", defaultCodeTTL, &cfg.CodeTTL},
		{"SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.ShutdownTimeout},
		{"CHANNEL_TIMEOUT", defaultOutboundTimeout, &cfg.WhatsApp.Timeout},
		{"EXTRACTION_TIMEOUT", defaultOutboundTimeout, &cfg.Extraction.Timeout},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	switch cfg.Extraction.Provider {
	case ProviderGateway:
		cfg.Extraction.Model = getEnv("EXTRACTION_MODEL", defaultExtractionModel)
	case ProviderGemini:
		cfg.Extraction.Model = getEnv("EXTRACTION_MODEL", defaultGeminiModel)
	default:
		return nil, fmt.Errorf("unsupported EXTRACTION_PROVIDER %q (use %q or %q)", cfg.Extraction.Provider, ProviderGateway, ProviderGemini)
	}

	loc, err := time.LoadLocation(getEnv("EXPENSE_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXPENSE_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY not set in environment")
	}
	if cfg.WhatsApp.AccessToken == "" || cfg.WhatsApp.PhoneNumberID == "" || cfg.WhatsApp.VerifyToken == "" {
		return nil, fmt.Errorf("whatsapp environment variables not set (WHATSAPP_ACCESS_TOKEN, WHATSAPP_PHONE_NUMBER_ID, WHATSAPP_VERIFY_TOKEN)")
	}
	if cfg.Extraction.APIKey == "" {
		return nil, fmt.Errorf("EXTRACTION_API_KEY not set in environment")
	}

	return cfg, nil
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	if strings.HasPrefix(c.ServerPort, ":") {
		return c.ServerPort
	}
	return ":" + c.ServerPort
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
