package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dr-abraham74/paracetamol-OD/internal/domain/assessment"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	AuthMode        string   `mapstructure:"AUTH_MODE"`
	AuthIssuer      string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey  string   `mapstructure:"AUTH_SIGNING_KEY"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`
	SessionTTLHours int      `mapstructure:"SESSION_TTL_HOURS"`

	// Clinical rule overrides. Zero keeps the published default for the key;
	// the assembled parameter set is validated before the server starts.
	HighRiskDoseMgPerKg        float64 `mapstructure:"HIGH_RISK_DOSE_MG_PER_KG"`
	HighRiskElapsedHours       float64 `mapstructure:"HIGH_RISK_ELAPSED_HOURS"`
	SignificantDoseMgPerKg     float64 `mapstructure:"SIGNIFICANT_DOSE_MG_PER_KG"`
	BloodTestWaitHours         float64 `mapstructure:"BLOOD_TEST_WAIT_HOURS"`
	LatePresentationHours      float64 `mapstructure:"LATE_PRESENTATION_HOURS"`
	NacThresholdStaggeredMgL   float64 `mapstructure:"NAC_THRESHOLD_STAGGERED_MG_L"`
	NacThresholdLateMgL        float64 `mapstructure:"NAC_THRESHOLD_LATE_MG_L"`
	NacThresholdTherapeuticMgL float64 `mapstructure:"NAC_THRESHOLD_THERAPEUTIC_MG_L"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("SESSION_TTL_HOURS", 24)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("SESSION_TTL_HOURS")
	v.BindEnv("HIGH_RISK_DOSE_MG_PER_KG")
	v.BindEnv("HIGH_RISK_ELAPSED_HOURS")
	v.BindEnv("SIGNIFICANT_DOSE_MG_PER_KG")
	v.BindEnv("BLOOD_TEST_WAIT_HOURS")
	v.BindEnv("LATE_PRESENTATION_HOURS")
	v.BindEnv("NAC_THRESHOLD_STAGGERED_MG_L")
	v.BindEnv("NAC_THRESHOLD_LATE_MG_L")
	v.BindEnv("NAC_THRESHOLD_THERAPEUTIC_MG_L")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get full access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SIGNING_KEY.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SessionTTL converts the configured session lifetime to a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (no auth, all requests get full access)
//   - Otherwise       → "token" (bearer JWT signed with AUTH_SIGNING_KEY)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "token"
}

// AssessmentParameters applies any configured overrides onto the published
// rule parameters. A zero (unset) override keeps the default for that key.
func (c *Config) AssessmentParameters() assessment.ParameterSet {
	p := assessment.DefaultParameters()
	if c.HighRiskDoseMgPerKg > 0 {
		p.HighRiskDoseMgPerKg = c.HighRiskDoseMgPerKg
	}
	if c.HighRiskElapsedHours > 0 {
		p.HighRiskElapsedHours = c.HighRiskElapsedHours
	}
	if c.SignificantDoseMgPerKg > 0 {
		p.SignificantDoseMgPerKg = c.SignificantDoseMgPerKg
	}
	if c.BloodTestWaitHours > 0 {
		p.BloodTestWaitHours = c.BloodTestWaitHours
	}
	if c.LatePresentationHours > 0 {
		p.LatePresentationHours = c.LatePresentationHours
	}
	if c.NacThresholdStaggeredMgL > 0 {
		p.StaggeredLevelCutoffMgL = c.NacThresholdStaggeredMgL
	}
	if c.NacThresholdLateMgL > 0 {
		p.LateLevelCutoffMgL = c.NacThresholdLateMgL
	}
	if c.NacThresholdTherapeuticMgL > 0 {
		p.TherapeuticLevelCutoffMgL = c.NacThresholdTherapeuticMgL
	}
	return p
}

// Validate checks that the configuration is safe to run. In non-development
// modes AUTH_SIGNING_KEY must be set so that real JWT authentication is
// enforced, and any clinical overrides must assemble into a coherent rule
// parameter set.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	switch mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf(
				"AUTH_MODE=development cannot be combined with ENV=production. " +
					"Refusing to start without authentication. " +
					"Set AUTH_SIGNING_KEY and AUTH_MODE=token")
		}
	case "token":
		if c.AuthSigningKey == "" {
			return fmt.Errorf(
				"AUTH_SIGNING_KEY must be set when AUTH_MODE is \"token\" (current ENV=%q). "+
					"Refusing to start without authentication configuration", c.Env)
		}
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"token\", got %q", mode)
	}

	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive, got %d", c.SessionTTLHours)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", c.RateLimitBurst)
	}
	if c.DatabaseURL != "" && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS %d exceeds DB_MAX_CONNS %d", c.DBMinConns, c.DBMaxConns)
	}

	for name, v := range map[string]float64{
		"HIGH_RISK_DOSE_MG_PER_KG":       c.HighRiskDoseMgPerKg,
		"HIGH_RISK_ELAPSED_HOURS":        c.HighRiskElapsedHours,
		"SIGNIFICANT_DOSE_MG_PER_KG":     c.SignificantDoseMgPerKg,
		"BLOOD_TEST_WAIT_HOURS":          c.BloodTestWaitHours,
		"LATE_PRESENTATION_HOURS":        c.LatePresentationHours,
		"NAC_THRESHOLD_STAGGERED_MG_L":   c.NacThresholdStaggeredMgL,
		"NAC_THRESHOLD_LATE_MG_L":        c.NacThresholdLateMgL,
		"NAC_THRESHOLD_THERAPEUTIC_MG_L": c.NacThresholdTherapeuticMgL,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, v)
		}
	}
	params := c.AssessmentParameters()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("clinical parameter overrides: %w", err)
	}

	return nil
}
