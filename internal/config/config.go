package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	FrontendOrigin string
	RedisURL       string
	RedisPassword  string

	// Price oracle (CoinGecko-compatible).
	PriceAPIURL string
	PriceAPIKey string
	MonCoinID   string

	// TVL and DEX volume oracle (DefiLlama-compatible, one base URL).
	LlamaAPIURL string

	// Incentive campaigns oracle (Merkl-compatible).
	RewardsAPIURL  string
	RewardsChainID string

	// AI analysis (OpenAI-compatible chat completions).
	AIAPIURL string
	AIAPIKey string
	AIModel  string

	// DefaultMonPrice is the documented fallback applied when the price
	// oracle is unreachable; the dashboard stays available on stale-ish
	// pricing rather than failing the whole refresh.
	DefaultMonPrice float64

	// OracleDelay spaces consecutive TVL/volume calls to stay inside
	// the free-tier rate limits.
	OracleDelay     time.Duration
	PriceTimeout    time.Duration
	MarketTimeout   time.Duration
	AITimeout       time.Duration
	RefreshInterval time.Duration

	ProtocolsFile string
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),
		RedisURL:       envOr("REDIS_URL", "redis://redis-master.redis.svc.cluster.local:6379/0"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),

		PriceAPIURL: envOr("PRICE_API_URL", "https://api.coingecko.com/api/v3"),
		PriceAPIKey: os.Getenv("PRICE_API_KEY"),
		MonCoinID:   envOr("MON_COIN_ID", "monad"),

		LlamaAPIURL: envOr("LLAMA_API_URL", "https://api.llama.fi"),

		RewardsAPIURL:  envOr("REWARDS_API_URL", "https://api.merkl.xyz/v4"),
		RewardsChainID: envOr("REWARDS_CHAIN_ID", "143"),

		AIAPIURL: envOr("AI_API_URL", "https://api.openai.com/v1"),
		AIAPIKey: os.Getenv("AI_API_KEY"),
		AIModel:  envOr("AI_MODEL", "gpt-4o-mini"),

		DefaultMonPrice: envFloatOr("MON_FALLBACK_PRICE", 0.02),

		OracleDelay:     envDurationOr("ORACLE_DELAY", time.Second),
		PriceTimeout:    envDurationOr("PRICE_TIMEOUT", 5*time.Second),
		MarketTimeout:   envDurationOr("MARKET_TIMEOUT", 15*time.Second),
		AITimeout:       envDurationOr("AI_TIMEOUT", 2*time.Minute),
		RefreshInterval: envDurationOr("REFRESH_INTERVAL", time.Hour),

		ProtocolsFile: envOr("PROTOCOLS_FILE", "protocols.yaml"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"AI_API_KEY":     &cfg.AIAPIKey,
		"PRICE_API_KEY":  &cfg.PriceAPIKey,
		"REDIS_PASSWORD": &cfg.RedisPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("unparsable duration env, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return d
}

func envFloatOr(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("unparsable float env, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return f
}
