/**
 * @description
 * This package handles configuration management for the settlement service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional .env file), providing a centralized way to manage
 * application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration variables for the settlement service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventExchange  string `mapstructure:"SETTLEMENT_EVENT_EXCHANGE"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	// Fiat rail (Juno) gateway.
	JunoAPIBaseURL string `mapstructure:"JUNO_API_BASE_URL"`
	JunoAPIKey     string `mapstructure:"JUNO_API_KEY"`
	JunoAPISecret  string `mapstructure:"JUNO_API_SECRET"`

	// Chain gateway (bridge signer service owning the escrow signing key).
	ChainAPIBaseURL    string `mapstructure:"CHAIN_API_BASE_URL"`
	ChainAPIKey        string `mapstructure:"CHAIN_API_KEY"`
	BridgeWallet       string `mapstructure:"ESCROW_BRIDGE_WALLET"`
	TokenAddress       string `mapstructure:"MXNB_TOKEN_ADDRESS"`

	// Job schedules (cron expressions).
	DepositSyncSchedule    string `mapstructure:"DEPOSIT_SYNC_SCHEDULE"`
	CustodyReleaseSchedule string `mapstructure:"CUSTODY_RELEASE_SCHEDULE"`
	PayoutSchedule         string `mapstructure:"PAYOUT_SCHEDULE"`
	FundingRetrySchedule   string `mapstructure:"FUNDING_RETRY_SCHEDULE"`
	SafetyCheckSchedule    string `mapstructure:"SAFETY_CHECK_SCHEDULE"`
	MultiSigExpirySchedule string `mapstructure:"MULTISIG_EXPIRY_SCHEDULE"`

	// Lifecycle tuning.
	FundingGraceMinutes   int `mapstructure:"FUNDING_GRACE_MINUTES"`
	ReleaseGraceMinutes   int `mapstructure:"RELEASE_GRACE_MINUTES"`
	FundingTimeoutMinutes int `mapstructure:"FUNDING_TIMEOUT_MINUTES"`
	MaxFundingAttempts    int `mapstructure:"MAX_FUNDING_ATTEMPTS"`
	BackoffBaseMinutes    int `mapstructure:"FUNDING_BACKOFF_BASE_MINUTES"`

	// Multi-sig policy.
	FXMXNPerUSD                  float64 `mapstructure:"FX_MXN_PER_USD"`
	HighValueThresholdUSD        float64 `mapstructure:"MULTISIG_HIGH_VALUE_THRESHOLD"`
	EnterpriseThresholdUSD       float64 `mapstructure:"MULTISIG_ENTERPRISE_THRESHOLD"`
	HighValueRequiredSignatures  int     `mapstructure:"HIGH_VALUE_MULTISIG_THRESHOLD"`
	EnterpriseRequiredSignatures int     `mapstructure:"ENTERPRISE_MULTISIG_THRESHOLD"`
	ApprovalExpiryHours          int     `mapstructure:"MULTISIG_APPROVAL_EXPIRY_HOURS"`
}

// LoadConfig reads configuration from environment variables at the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SETTLEMENT_EVENT_EXCHANGE", "kustodia.settlement")
	viper.SetDefault("JUNO_API_BASE_URL", "https://buildwithjuno.com")
	viper.SetDefault("DEPOSIT_SYNC_SCHEDULE", "* * * * *")
	viper.SetDefault("CUSTODY_RELEASE_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("PAYOUT_SCHEDULE", "*/2 * * * *")
	viper.SetDefault("FUNDING_RETRY_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("SAFETY_CHECK_SCHEDULE", "*/15 * * * *")
	viper.SetDefault("MULTISIG_EXPIRY_SCHEDULE", "*/30 * * * *")
	viper.SetDefault("FUNDING_GRACE_MINUTES", 10)
	viper.SetDefault("RELEASE_GRACE_MINUTES", 30)
	viper.SetDefault("FUNDING_TIMEOUT_MINUTES", 20)
	viper.SetDefault("MAX_FUNDING_ATTEMPTS", 3)
	viper.SetDefault("FUNDING_BACKOFF_BASE_MINUTES", 5)
	viper.SetDefault("FX_MXN_PER_USD", 18.0)
	viper.SetDefault("MULTISIG_HIGH_VALUE_THRESHOLD", 1000.0)
	viper.SetDefault("MULTISIG_ENTERPRISE_THRESHOLD", 10000.0)
	viper.SetDefault("HIGH_VALUE_MULTISIG_THRESHOLD", 2)
	viper.SetDefault("ENTERPRISE_MULTISIG_THRESHOLD", 2)
	viper.SetDefault("MULTISIG_APPROVAL_EXPIRY_HOURS", 72)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SETTLEMENT_EVENT_EXCHANGE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("JUNO_API_BASE_URL")
	_ = viper.BindEnv("JUNO_API_KEY")
	_ = viper.BindEnv("JUNO_API_SECRET")
	_ = viper.BindEnv("CHAIN_API_BASE_URL")
	_ = viper.BindEnv("CHAIN_API_KEY")
	_ = viper.BindEnv("ESCROW_BRIDGE_WALLET")
	_ = viper.BindEnv("MXNB_TOKEN_ADDRESS")
	_ = viper.BindEnv("DEPOSIT_SYNC_SCHEDULE")
	_ = viper.BindEnv("CUSTODY_RELEASE_SCHEDULE")
	_ = viper.BindEnv("PAYOUT_SCHEDULE")
	_ = viper.BindEnv("FUNDING_RETRY_SCHEDULE")
	_ = viper.BindEnv("SAFETY_CHECK_SCHEDULE")
	_ = viper.BindEnv("MULTISIG_EXPIRY_SCHEDULE")
	_ = viper.BindEnv("FUNDING_GRACE_MINUTES")
	_ = viper.BindEnv("RELEASE_GRACE_MINUTES")
	_ = viper.BindEnv("FUNDING_TIMEOUT_MINUTES")
	_ = viper.BindEnv("MAX_FUNDING_ATTEMPTS")
	_ = viper.BindEnv("FUNDING_BACKOFF_BASE_MINUTES")
	_ = viper.BindEnv("FX_MXN_PER_USD")
	_ = viper.BindEnv("MULTISIG_HIGH_VALUE_THRESHOLD")
	_ = viper.BindEnv("MULTISIG_ENTERPRISE_THRESHOLD")
	_ = viper.BindEnv("HIGH_VALUE_MULTISIG_THRESHOLD")
	_ = viper.BindEnv("ENTERPRISE_MULTISIG_THRESHOLD")
	_ = viper.BindEnv("MULTISIG_APPROVAL_EXPIRY_HOURS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if config.MaxFundingAttempts <= 0 {
		config.MaxFundingAttempts = 3
	}
	if config.BackoffBaseMinutes <= 0 {
		config.BackoffBaseMinutes = 5
	}
	if config.ApprovalExpiryHours <= 0 {
		config.ApprovalExpiryHours = 72
	}

	return
}

// Validate checks for fatal configuration errors: missing credentials or
// endpoints abort the scheduler entirely rather than being swallowed.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.JunoAPIKey) == "" {
		missing = append(missing, "JUNO_API_KEY")
	}
	if strings.TrimSpace(c.JunoAPISecret) == "" {
		missing = append(missing, "JUNO_API_SECRET")
	}
	if strings.TrimSpace(c.ChainAPIBaseURL) == "" {
		missing = append(missing, "CHAIN_API_BASE_URL")
	}
	if strings.TrimSpace(c.BridgeWallet) == "" {
		missing = append(missing, "ESCROW_BRIDGE_WALLET")
	}
	if strings.TrimSpace(c.TokenAddress) == "" {
		missing = append(missing, "MXNB_TOKEN_ADDRESS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.FXMXNPerUSD <= 0 {
		return fmt.Errorf("FX_MXN_PER_USD must be positive, got %v", c.FXMXNPerUSD)
	}
	if c.EnterpriseThresholdUSD <= c.HighValueThresholdUSD {
		return fmt.Errorf("MULTISIG_ENTERPRISE_THRESHOLD (%v) must exceed MULTISIG_HIGH_VALUE_THRESHOLD (%v)",
			c.EnterpriseThresholdUSD, c.HighValueThresholdUSD)
	}
	return nil
}

// MXNPerUSD returns the configured FX rate as a decimal.
func (c Config) MXNPerUSD() decimal.Decimal {
	return decimal.NewFromFloat(c.FXMXNPerUSD)
}
