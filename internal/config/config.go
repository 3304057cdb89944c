package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	App     AppConfig
	JWT     JWTConfig
	DB      DBConfig
	Custody CustodyConfig
}

type AppConfig struct {
	Env   string `envconfig:"ORRANGE_ENV" default:"development"`
	Port  string `envconfig:"ORRANGE_PORT" default:"8080"`
	Debug bool   `envconfig:"ORRANGE_DEBUG" default:"false"`
}

func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, EnvProduction)
}

type JWTConfig struct {
	Secret string `envconfig:"ORRANGE_JWT_SECRET" required:"true"`
}

type DBConfig struct {
	Path string `envconfig:"ORRANGE_DB_PATH" default:"orrange.db"`
}

// CustodyConfig configures the custody provider (wallet signing) and the
// chain RPC endpoint used for balance reads. Mode "simulated" swaps the real
// client for an in-memory gateway; only valid outside production.
type CustodyConfig struct {
	Mode                    string `envconfig:"ORRANGE_CUSTODY_MODE" default:"provider"`
	ProviderURL             string `envconfig:"ORRANGE_CUSTODY_PROVIDER_URL" default:"https://auth.privy.io"`
	AppID                   string `envconfig:"ORRANGE_CUSTODY_APP_ID"`
	AppSecret               string `envconfig:"ORRANGE_CUSTODY_APP_SECRET"`
	AuthorizationKeyID      string `envconfig:"ORRANGE_CUSTODY_AUTH_KEY_ID"`
	AuthorizationPrivateKey string `envconfig:"ORRANGE_CUSTODY_AUTH_PRIVATE_KEY"`
	ChainRPCURL             string `envconfig:"ORRANGE_CHAIN_RPC_URL" default:"https://ethereum-sepolia-rpc.publicnode.com"`
	ChainID                 int64  `envconfig:"ORRANGE_CHAIN_ID" default:"11155111"`
	USDCContract            string `envconfig:"ORRANGE_USDC_CONTRACT" default:"0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"`
}

func (c CustodyConfig) Simulated() bool {
	return strings.EqualFold(c.Mode, "simulated")
}

// Load reads configuration from the environment, with a best-effort .env
// load for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("orrange", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.App.IsProduction() && cfg.Custody.Simulated() {
		return nil, fmt.Errorf("simulated custody gateway is not allowed in production")
	}
	if !cfg.Custody.Simulated() {
		if cfg.Custody.AppID == "" || cfg.Custody.AppSecret == "" {
			return nil, fmt.Errorf("custody provider credentials are required")
		}
		if cfg.Custody.AuthorizationKeyID == "" || cfg.Custody.AuthorizationPrivateKey == "" {
			return nil, fmt.Errorf("custody authorization key is required for server signing")
		}
	}

	return &cfg, nil
}
