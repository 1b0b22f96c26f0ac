package config

import (
	"os"
	"time"

	authConfig "github.com/avello/storefront/internal/auth/config"
	handlerConfig "github.com/avello/storefront/internal/handler/config"
	loggerConfig "github.com/avello/storefront/internal/logger/config"
	serviceConfig "github.com/avello/storefront/internal/service/config"
	"github.com/avello/storefront/internal/service/supplierclient"
	storeConfig "github.com/avello/storefront/internal/store/config"
)

type Config struct {
	Handler handlerConfig.Config
	Service serviceConfig.Config
	Store   storeConfig.Config
	Logger  loggerConfig.Config
	Auth    authConfig.Config
}

func GetConfig() Config {
	return Config{
		Handler: handlerConfig.Config{
			ServerAddr: getenvDefault("RUN_ADDRESS", ":8080"),
		},
		Service: serviceConfig.Config{
			UnderCutters: supplierclient.Config{
				Name:           supplierclient.ProviderUnderCutters,
				BaseURL:        getenvDefault("UNDERCUTTERS_ADDRESS", "http://undercutters.azurewebsites.net"),
				RequestTimeout: 10 * time.Second,
			},
			// DodgyDealers is the flaky one: bounded retries with
			// exponential backoff, breaker after 5 consecutive
			// failures, 15s cooldown.
			DodgyDealers: supplierclient.Config{
				Name:           supplierclient.ProviderDodgyDealers,
				BaseURL:        getenvDefault("DODGYDEALERS_ADDRESS", "http://dodgydealers.azurewebsites.net"),
				RequestTimeout: 10 * time.Second,
				Retry: supplierclient.RetryConfig{
					Count:       3,
					WaitTime:    2 * time.Second,
					MaxWaitTime: 8 * time.Second,
				},
				Breaker: supplierclient.BreakerConfig{
					Enabled:          true,
					FailureThreshold: 5,
					OpenFor:          15 * time.Second,
				},
			},
			MirrorInterval: 5 * time.Minute,
		},
		Store: storeConfig.Config{
			DBDsn: os.Getenv("DATABASE_DSN"),
		},
		Logger: loggerConfig.Config{
			LogLevel: getenvDefault("LOG_LEVEL", "info"),
		},
		Auth: authConfig.Config{
			Secret: os.Getenv("IDENTITY_SECRET"),
		},
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
