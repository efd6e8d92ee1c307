package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/akhilaminc/bankfeed/internal/errors"
)

// Config is the top-level service configuration, loaded from the environment.
type Config struct {
	Port               string
	DBConnectionString string
	Airwallex          AirwallexConfig
	Skript             SkriptConfig
	Sync               *SyncConfig
}

// AirwallexClient holds one set of Airwallex API credentials and the local
// ledger account its transactions post to.
type AirwallexClient struct {
	ClientID    string
	APIKey      string
	BankAccount string
}

// AirwallexConfig holds the payments-provider configuration
type AirwallexConfig struct {
	Enabled    bool
	APIBaseURL string
	Schedule   string
	Clients    []AirwallexClient
}

// SkriptConfig holds the open-banking-provider configuration
type SkriptConfig struct {
	Enabled      bool
	APIBaseURL   string
	TokenURL     string
	ConsumerID   string
	ClientID     string
	ClientSecret string
	Scope        string
	Schedule     string
}

// Load reads configuration from the environment with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DBConnectionString: getEnv("DB_CONNECTION_STRING", ""),
		Airwallex: AirwallexConfig{
			Enabled:    getBoolEnv("AIRWALLEX_ENABLED", false),
			APIBaseURL: getEnv("AIRWALLEX_API_URL", "https://api.airwallex.com/api/v1"),
			Schedule:   getEnv("AIRWALLEX_SYNC_SCHEDULE", "Hourly"),
		},
		Skript: SkriptConfig{
			Enabled:      getBoolEnv("SKRIPT_ENABLED", false),
			APIBaseURL:   getEnv("SKRIPT_API_URL", ""),
			TokenURL:     getEnv("SKRIPT_TOKEN_URL", ""),
			ConsumerID:   getEnv("SKRIPT_CONSUMER_ID", ""),
			ClientID:     getEnv("SKRIPT_CLIENT_ID", ""),
			ClientSecret: getEnv("SKRIPT_CLIENT_SECRET", ""),
			Scope:        getEnv("SKRIPT_API_SCOPE", "skript/ob-products skript/ob-direct-data"),
			Schedule:     getEnv("SKRIPT_SYNC_SCHEDULE", "Daily"),
		},
		Sync: DefaultSyncConfig(),
	}

	clients, err := parseAirwallexClients(getEnv("AIRWALLEX_CLIENTS", ""))
	if err != nil {
		return nil, err
	}
	cfg.Airwallex.Clients = clients

	if cfg.Airwallex.Enabled && len(cfg.Airwallex.Clients) == 0 {
		return nil, errors.NewConfigError("AIRWALLEX_CLIENTS must be set when Airwallex is enabled", nil)
	}
	if cfg.Skript.Enabled {
		if cfg.Skript.TokenURL == "" || cfg.Skript.ClientID == "" || cfg.Skript.ClientSecret == "" {
			return nil, errors.NewConfigError("SKRIPT_TOKEN_URL, SKRIPT_CLIENT_ID and SKRIPT_CLIENT_SECRET must be set when Skript is enabled", nil)
		}
		if cfg.Skript.ConsumerID == "" || cfg.Skript.APIBaseURL == "" {
			return nil, errors.NewConfigError("SKRIPT_CONSUMER_ID and SKRIPT_API_URL must be set when Skript is enabled", nil)
		}
	}

	return cfg, nil
}

// parseAirwallexClients parses "clientID|apiKey|bankAccount" triples separated
// by commas.
func parseAirwallexClients(raw string) ([]AirwallexClient, error) {
	if raw == "" {
		return nil, nil
	}
	var clients []AirwallexClient
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, errors.NewConfigError("invalid AIRWALLEX_CLIENTS entry, want clientID|apiKey|bankAccount", nil)
		}
		clients = append(clients, AirwallexClient{
			ClientID:    strings.TrimSpace(parts[0]),
			APIKey:      strings.TrimSpace(parts[1]),
			BankAccount: strings.TrimSpace(parts[2]),
		})
	}
	return clients, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
