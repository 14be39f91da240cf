package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Payment gateway configuration
	PaymentGatewayURL   string
	PaymentRetryMax     int
	PaymentRetryBackoff time.Duration

	// Stake configuration
	Currency          string
	MinStakeAmount    decimal.Decimal
	MaxStakeAmount    decimal.Decimal
	MinDeadlineOffset time.Duration
	MaxDeadlineOffset time.Duration
	GracePeriod       time.Duration
	// PartialCompletionFloor is the completion percentage below which a
	// submission still counts as a full failure.
	PartialCompletionFloor int
	// PartialPenaltyReduction is the fraction knocked off the base penalty on
	// partial completion.
	PartialPenaltyReduction decimal.Decimal
	// RewardFraction of the owner's principal paid out on completion.
	RewardFraction decimal.Decimal
	// PenaltyFraction of the owner's principal charged on failure.
	PenaltyFraction decimal.Decimal
	PlatformFeePct  decimal.Decimal
	GatewayFeePct   decimal.Decimal
	MinProofLength  int

	// Risk gate configuration. Fraud points and thresholds are deliberately
	// configuration, not behaviour: only the accumulate-then-classify
	// pipeline is fixed.
	RateLimitWindow       time.Duration
	RateLimitMax          int
	DailyStakeLimit       int
	DailyValueLimit       decimal.Decimal
	MonthlyStakeLimit     int
	MonthlyValueLimit     decimal.Decimal
	FraudMediumThreshold  int
	FraudHighThreshold    int
	PointsRapidCreation   int
	PointsAnomalousAmount int
	PointsBadSignature    int
	PointsAmountPattern   int
	PointsEscalation      int
	PointsChargebacks     int
	RestrictedCountries   []string

	// Recovery configuration
	MaxRecoveryPct      decimal.Decimal
	RecoveryMultiplier  decimal.Decimal
	MaxRecoveryAttempts int

	// Sweep configuration
	SweepInterval time.Duration
	SweepLockTTL  time.Duration
	InstanceID    string

	// Notification configuration
	TelegramBotToken string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	SMTPSender       string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		APIPort:          getEnvAsInt("API_PORT", 6640),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "sponsio"),

		PaymentGatewayURL:   getEnv("PAYMENT_GATEWAY_URL", "http://localhost:8660"),
		PaymentRetryMax:     getEnvAsInt("PAYMENT_RETRY_MAX", 3),
		PaymentRetryBackoff: getEnvAsDuration("PAYMENT_RETRY_BACKOFF", 500*time.Millisecond),

		Currency:                getEnv("CURRENCY", "USD"),
		MinStakeAmount:          getEnvAsDecimal("MIN_STAKE_AMOUNT", "5"),
		MaxStakeAmount:          getEnvAsDecimal("MAX_STAKE_AMOUNT", "1000"),
		MinDeadlineOffset:       getEnvAsDuration("MIN_DEADLINE_OFFSET", time.Hour),
		MaxDeadlineOffset:       getEnvAsDuration("MAX_DEADLINE_OFFSET", 90*24*time.Hour),
		GracePeriod:             getEnvAsDuration("GRACE_PERIOD", 24*time.Hour),
		PartialCompletionFloor:  getEnvAsInt("PARTIAL_COMPLETION_FLOOR", 25),
		PartialPenaltyReduction: getEnvAsDecimal("PARTIAL_PENALTY_REDUCTION", "0.5"),
		RewardFraction:          getEnvAsDecimal("REWARD_FRACTION", "0.1"),
		PenaltyFraction:         getEnvAsDecimal("PENALTY_FRACTION", "1"),
		PlatformFeePct:          getEnvAsDecimal("PLATFORM_FEE_PCT", "0.05"),
		GatewayFeePct:           getEnvAsDecimal("GATEWAY_FEE_PCT", "0.029"),
		MinProofLength:          getEnvAsInt("MIN_PROOF_LENGTH", 10),

		RateLimitWindow:       getEnvAsDuration("RATE_LIMIT_WINDOW", 10*time.Minute),
		RateLimitMax:          getEnvAsInt("RATE_LIMIT_MAX", 5),
		DailyStakeLimit:       getEnvAsInt("DAILY_STAKE_LIMIT", 10),
		DailyValueLimit:       getEnvAsDecimal("DAILY_VALUE_LIMIT", "2000"),
		MonthlyStakeLimit:     getEnvAsInt("MONTHLY_STAKE_LIMIT", 100),
		MonthlyValueLimit:     getEnvAsDecimal("MONTHLY_VALUE_LIMIT", "20000"),
		FraudMediumThreshold:  getEnvAsInt("FRAUD_MEDIUM_THRESHOLD", 40),
		FraudHighThreshold:    getEnvAsInt("FRAUD_HIGH_THRESHOLD", 70),
		PointsRapidCreation:   getEnvAsInt("POINTS_RAPID_CREATION", 15),
		PointsAnomalousAmount: getEnvAsInt("POINTS_ANOMALOUS_AMOUNT", 25),
		PointsBadSignature:    getEnvAsInt("POINTS_BAD_SIGNATURE", 20),
		PointsAmountPattern:   getEnvAsInt("POINTS_AMOUNT_PATTERN", 10),
		PointsEscalation:      getEnvAsInt("POINTS_ESCALATION", 15),
		PointsChargebacks:     getEnvAsInt("POINTS_CHARGEBACKS", 30),
		RestrictedCountries:   getEnvAsList("RESTRICTED_COUNTRIES", nil),

		MaxRecoveryPct:      getEnvAsDecimal("MAX_RECOVERY_PCT", "0.5"),
		RecoveryMultiplier:  getEnvAsDecimal("RECOVERY_MULTIPLIER", "2"),
		MaxRecoveryAttempts: getEnvAsInt("MAX_RECOVERY_ATTEMPTS", 3),

		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		SweepLockTTL:  getEnvAsDuration("SWEEP_LOCK_TTL", 5*time.Minute),
		InstanceID:    getEnv("INSTANCE_ID", fmt.Sprintf("sponsio-%d", os.Getpid())),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SMTPSender:       getEnv("SMTP_SENDER", ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configuration fields are internally consistent
func (c *Config) Validate() error {
	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PaymentGatewayURL == "" {
		return fmt.Errorf("PAYMENT_GATEWAY_URL is required")
	}
	if !c.MinStakeAmount.IsPositive() {
		return fmt.Errorf("MIN_STAKE_AMOUNT must be positive")
	}
	if c.MaxStakeAmount.LessThanOrEqual(c.MinStakeAmount) {
		return fmt.Errorf("MAX_STAKE_AMOUNT must exceed MIN_STAKE_AMOUNT")
	}
	if c.MinDeadlineOffset <= 0 || c.MaxDeadlineOffset <= c.MinDeadlineOffset {
		return fmt.Errorf("deadline offsets must satisfy 0 < min < max")
	}
	if c.PartialCompletionFloor < 0 || c.PartialCompletionFloor > 100 {
		return fmt.Errorf("PARTIAL_COMPLETION_FLOOR must be between 0 and 100")
	}
	for name, frac := range map[string]decimal.Decimal{
		"PARTIAL_PENALTY_REDUCTION": c.PartialPenaltyReduction,
		"REWARD_FRACTION":           c.RewardFraction,
		"PENALTY_FRACTION":          c.PenaltyFraction,
		"PLATFORM_FEE_PCT":          c.PlatformFeePct,
		"GATEWAY_FEE_PCT":           c.GatewayFeePct,
		"MAX_RECOVERY_PCT":          c.MaxRecoveryPct,
	} {
		if frac.IsNegative() || frac.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.FraudHighThreshold <= c.FraudMediumThreshold {
		return fmt.Errorf("FRAUD_HIGH_THRESHOLD must exceed FRAUD_MEDIUM_THRESHOLD")
	}
	if !c.RecoveryMultiplier.IsPositive() {
		return fmt.Errorf("RECOVERY_MULTIPLIER must be positive")
	}
	if c.MaxRecoveryAttempts < 1 {
		return fmt.Errorf("MAX_RECOVERY_ATTEMPTS must be at least 1")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDecimal(name string, defaultValue string) decimal.Decimal {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := decimal.NewFromString(valueStr); err == nil {
			return value
		}
	}
	return decimal.RequireFromString(defaultValue)
}

func getEnvAsList(name string, defaultValue []string) []string {
	if valueStr, exists := os.LookupEnv(name); exists && valueStr != "" {
		parts := strings.Split(valueStr, ",")
		for i := range parts {
			parts[i] = strings.ToUpper(strings.TrimSpace(parts[i]))
		}
		return parts
	}
	return defaultValue
}
