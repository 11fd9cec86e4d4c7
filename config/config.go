/*
Package config loads server settings from defaults, an optional .env file
and TUITION_* environment variables.

PRECEDENCE (highest first):
  command-line flags (applied by cmd/server)
  TUITION_* environment variables
  .env file (loaded into the environment, never overriding it)
  defaults below

KEYS:
  TUITION_PORT                    8080
  TUITION_DB_PATH                 tuition.db
  TUITION_LOG_LEVEL               info
  TUITION_LOG_DEVELOPMENT         false
  TUITION_CORS_ORIGINS            http://localhost:3000,http://localhost:5173
  TUITION_PRE_ENROLLMENT          bill_exempt | skip
  TUITION_DISCOUNT_AMOUNT         0
  TUITION_DISCOUNT_DEADLINE_DAYS  0
  TUITION_LATE_FEE_PER_DAY        0
  TUITION_GRACE_DAYS              0
  TUITION_OVERDUE_INTERVAL        1h  (0 disables the overdue scheduler)

  The billing keys seed the policy on first start; afterwards the policy
  stored in the database wins.
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/tuition-engine/billing"
)

const EnvPrefix = "TUITION"

type Config struct {
	Port            int
	DBPath          string
	LogLevel        string
	LogDevelopment  bool
	CORSOrigins     []string
	PreEnrollment   billing.PreEnrollmentPolicy
	Policy          billing.Policy
	OverdueInterval time.Duration
}

// Load reads the configuration. envFile may be empty; a missing file is not
// an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "tuition.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
	v.SetDefault("cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("pre_enrollment", string(billing.PreEnrollmentBillExempt))
	v.SetDefault("discount_amount", "0")
	v.SetDefault("discount_deadline_days", 0)
	v.SetDefault("late_fee_per_day", "0")
	v.SetDefault("grace_days", 0)
	v.SetDefault("overdue_interval", time.Hour)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := Config{
		Port:            v.GetInt("port"),
		DBPath:          v.GetString("db_path"),
		LogLevel:        v.GetString("log_level"),
		LogDevelopment:  v.GetBool("log_development"),
		CORSOrigins:     splitList(v.GetStringSlice("cors_origins")),
		PreEnrollment:   billing.PreEnrollmentPolicy(v.GetString("pre_enrollment")),
		OverdueInterval: v.GetDuration("overdue_interval"),
	}
	if !cfg.PreEnrollment.Valid() {
		return Config{}, fmt.Errorf("config: %s_PRE_ENROLLMENT must be bill_exempt or skip, got %q", EnvPrefix, cfg.PreEnrollment)
	}

	discount, err := decimal.NewFromString(v.GetString("discount_amount"))
	if err != nil {
		return Config{}, fmt.Errorf("config: discount_amount: %w", err)
	}
	lateFee, err := decimal.NewFromString(v.GetString("late_fee_per_day"))
	if err != nil {
		return Config{}, fmt.Errorf("config: late_fee_per_day: %w", err)
	}
	cfg.Policy = billing.Policy{
		DiscountAmount:       discount,
		DiscountDeadlineDays: v.GetInt("discount_deadline_days"),
		LateFeePerDay:        lateFee,
		GraceDays:            v.GetInt("grace_days"),
	}
	if err := cfg.Policy.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Logger builds the process logger.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// splitList accepts both a real list and a single comma-separated value,
// which is what an environment variable yields.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
