package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	HTTPPort    int

	OpenAIAPIKey      string
	OpenAIModel       string
	AdvisorMaxHistory int

	ProfileMasterKey      string
	ProfileKeyVersion     int
	ProfileMasterKeyNext  string
	ProfileKeyVersionNext int
	ProfileHashPepper     string

	FredAPIKey   string
	QuoteAPIKey  string
	SearchAPIKey string

	MarketIndicatorTTLSecs int
	MarketQuoteTTLSecs     int
	MarketSearchTTLSecs    int
	MarketRefreshSecs      int
	ProviderTimeoutSecs    int
	AnswerTimeoutSecs      int
	SessionVaultTTLSecs    int

	StrictCapabilities bool
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		ProfileMasterKey:     strings.TrimSpace(os.Getenv("PROFILE_MASTER_KEY")),
		ProfileMasterKeyNext: strings.TrimSpace(os.Getenv("PROFILE_MASTER_KEY_NEXT")),
		ProfileHashPepper:    os.Getenv("PROFILE_HASH_PEPPER"),
		FredAPIKey:           strings.TrimSpace(os.Getenv("FRED_API_KEY")),
		QuoteAPIKey:          strings.TrimSpace(os.Getenv("QUOTE_API_KEY")),
		SearchAPIKey:         strings.TrimSpace(os.Getenv("SEARCH_API_KEY")),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, advisor will be disabled")
	}
	if cfg.ProfileMasterKey == "" {
		log.Println("Warning: PROFILE_MASTER_KEY not set, profile enrichment will be disabled")
	}
	if cfg.ProfileHashPepper == "" {
		log.Println("Warning: PROFILE_HASH_PEPPER not set")
	}
	if cfg.FredAPIKey == "" {
		log.Println("Warning: FRED_API_KEY not set, indicators provider will be disabled")
	}
	if cfg.QuoteAPIKey == "" {
		log.Println("Warning: QUOTE_API_KEY not set, quotes provider will be disabled")
	}
	if cfg.SearchAPIKey == "" {
		log.Println("Warning: SEARCH_API_KEY not set, search provider will be disabled")
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.AdvisorMaxHistory = 20
	if v := os.Getenv("ADVISOR_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AdvisorMaxHistory = n
		}
	}

	cfg.ProfileKeyVersion = 1
	if v := strings.TrimSpace(os.Getenv("PROFILE_KEY_VERSION")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ProfileKeyVersion = n
		}
	}

	cfg.ProfileKeyVersionNext = cfg.ProfileKeyVersion + 1
	if v := strings.TrimSpace(os.Getenv("PROFILE_KEY_VERSION_NEXT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > cfg.ProfileKeyVersion {
			cfg.ProfileKeyVersionNext = n
		}
	}

	cfg.MarketIndicatorTTLSecs = 21600
	if v := strings.TrimSpace(os.Getenv("MARKET_INDICATOR_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MarketIndicatorTTLSecs = n
		}
	}

	cfg.MarketQuoteTTLSecs = 300
	if v := strings.TrimSpace(os.Getenv("MARKET_QUOTE_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MarketQuoteTTLSecs = n
		}
	}

	cfg.MarketSearchTTLSecs = 600
	if v := strings.TrimSpace(os.Getenv("MARKET_SEARCH_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MarketSearchTTLSecs = n
		}
	}

	cfg.MarketRefreshSecs = 3600
	if v := strings.TrimSpace(os.Getenv("MARKET_REFRESH_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MarketRefreshSecs = n
		}
	}

	cfg.ProviderTimeoutSecs = 8
	if v := strings.TrimSpace(os.Getenv("PROVIDER_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ProviderTimeoutSecs = n
		}
	}

	cfg.AnswerTimeoutSecs = 60
	if v := strings.TrimSpace(os.Getenv("ANSWER_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AnswerTimeoutSecs = n
		}
	}

	cfg.SessionVaultTTLSecs = 1800
	if v := strings.TrimSpace(os.Getenv("SESSION_VAULT_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionVaultTTLSecs = n
		}
	}

	cfg.StrictCapabilities = strings.EqualFold(strings.TrimSpace(os.Getenv("STRICT_CAPABILITIES")), "true")

	return cfg
}
