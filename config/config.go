package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Config es la configuración completa del engine.
type Config struct {
	Betting  BettingConfig  `yaml:"betting" toml:"betting"`
	Executor ExecutorConfig `yaml:"executor" toml:"executor"`
	Manifold ManifoldConfig `yaml:"manifold" toml:"manifold"`
	LLM      LLMConfig      `yaml:"llm" toml:"llm"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// BettingConfig controla la búsqueda de mercados y la política de staking.
type BettingConfig struct {
	SearchTerm            string        `yaml:"search_term" toml:"search_term"`
	MarketLimit           int           `yaml:"market_limit" toml:"market_limit" default:"50" validate:"gte=1,lte=1000"`
	KellyFraction         float64       `yaml:"kelly_fraction" toml:"kelly_fraction" default:"0.25" validate:"gt=0,lte=1"`
	MinEdge               float64       `yaml:"min_edge" toml:"min_edge" default:"0.01" validate:"gte=0,lt=1"`
	MinConfidence         string        `yaml:"min_confidence" toml:"min_confidence" default:"medium" validate:"oneof=low medium high"`
	ResolutionMonthsLimit int           `yaml:"resolution_months_limit" toml:"resolution_months_limit" default:"1" validate:"gte=1"`
	MaxStakePerBet        float64       `yaml:"max_stake_per_bet" toml:"max_stake_per_bet" default:"50" validate:"gt=0"`
	MaxBankrollFraction   float64       `yaml:"max_bankroll_fraction" toml:"max_bankroll_fraction" default:"0.1" validate:"gt=0,lte=1"`
	MinStake              float64       `yaml:"min_stake" toml:"min_stake" default:"1" validate:"gte=0"`
	Slippage              float64       `yaml:"slippage" toml:"slippage" default:"0.01" validate:"gte=0,lt=0.5"`
	DryRun                bool          `yaml:"dry_run" toml:"dry_run"`
	Bankroll              float64       `yaml:"bankroll" toml:"bankroll" validate:"gte=0"` // 0 = saldo de la cuenta
	PauseBetweenMarkets   time.Duration `yaml:"pause_between_markets" toml:"pause_between_markets" default:"1s" validate:"gte=0"`
}

// ExecutorConfig controla los reintentos al apostar.
type ExecutorConfig struct {
	RetryLimit  int           `yaml:"retry_limit" toml:"retry_limit" default:"3" validate:"gte=0,lte=10"`
	BaseBackoff time.Duration `yaml:"base_backoff" toml:"base_backoff" default:"500ms" validate:"gt=0"`
	MaxBackoff  time.Duration `yaml:"max_backoff" toml:"max_backoff" default:"10s" validate:"gtefield=BaseBackoff"`
}

// ManifoldConfig contiene las credenciales y el endpoint de Manifold.
type ManifoldConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url" default:"https://api.manifold.markets/v0" validate:"url"`
}

// LLMConfig selecciona el modelo.
type LLMConfig struct {
	Provider string        `yaml:"provider" toml:"provider" default:"openrouter" validate:"oneof=openrouter gemini"`
	Model    string        `yaml:"model" toml:"model"` // vacío = default del provider
	APIKey   string        `yaml:"api_key" toml:"api_key"`
	BaseURL  string        `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout" default:"5m" validate:"gt=0"`
}

// StorageConfig controla dónde se persiste el audit log.
type StorageConfig struct {
	DSN string `yaml:"dsn" toml:"dsn" default:"autobet.db"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" default:"text" validate:"oneof=text json"`
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr" toml:"addr"` // vacío = desactivado
}

var validate = validator.New()

// Load carga la configuración desde el archivo (YAML o TOML según la extensión)
// y el archivo .env si existe. Orden de precedencia: defaults, archivo, entorno;
// un 0 explícito en el archivo o el entorno se respeta.
// Si path está vacío solo se usan entorno y defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w: %v", path, domain.ErrConfiguration, err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: %w: %v", domain.ErrConfiguration, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w: %v", domain.ErrConfiguration, err)
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse YAML: %w", err)
		}
	}
	return nil
}

// Validate comprueba rangos y credenciales. Se llama después de aplicar los
// flags de línea de comandos.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("config.Validate: %w: %s", domain.ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config.Validate: %w: %v", domain.ErrConfiguration, err)
	}

	if c.Betting.SearchTerm == "" {
		return fmt.Errorf("config.Validate: %w: search term is required", domain.ErrConfiguration)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config.Validate: %w: API key for llm provider %q is missing", domain.ErrConfiguration, c.LLM.Provider)
	}
	// sin API key no hay saldo ni apuestas; en dry-run basta con un bankroll fijo
	if c.Manifold.APIKey == "" && !(c.Betting.DryRun && c.Betting.Bankroll > 0) {
		return fmt.Errorf("config.Validate: %w: MANIFOLD_API_KEY is required (or dry_run with a fixed bankroll)", domain.ErrConfiguration)
	}
	return nil
}

// MinConfidenceLevel devuelve el nivel mínimo de confianza ya parseado.
func (b BettingConfig) MinConfidenceLevel() domain.Confidence {
	c, err := domain.ParseConfidence(b.MinConfidence)
	if err != nil {
		return domain.ConfidenceMedium
	}
	return c
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: not a number", key, v))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	str("SEARCH_TERM", &cfg.Betting.SearchTerm)
	integer("MARKET_LIMIT", &cfg.Betting.MarketLimit)
	float("KELLY_FRACTION", &cfg.Betting.KellyFraction)
	float("MIN_EDGE", &cfg.Betting.MinEdge)
	str("MIN_CONFIDENCE", &cfg.Betting.MinConfidence)
	integer("RESOLUTION_MONTHS_LIMIT", &cfg.Betting.ResolutionMonthsLimit)
	float("MAX_STAKE_PER_BET", &cfg.Betting.MaxStakePerBet)
	float("MAX_BANKROLL_FRACTION", &cfg.Betting.MaxBankrollFraction)
	float("MIN_STAKE", &cfg.Betting.MinStake)
	float("SLIPPAGE", &cfg.Betting.Slippage)
	boolean("DRY_RUN", &cfg.Betting.DryRun)
	float("BANKROLL", &cfg.Betting.Bankroll)
	duration("PAUSE_BETWEEN_MARKETS", &cfg.Betting.PauseBetweenMarkets)

	integer("RETRY_LIMIT", &cfg.Executor.RetryLimit)
	duration("BASE_BACKOFF", &cfg.Executor.BaseBackoff)
	duration("MAX_BACKOFF", &cfg.Executor.MaxBackoff)

	str("MANIFOLD_API_KEY", &cfg.Manifold.APIKey)
	str("MANIFOLD_BASE_URL", &cfg.Manifold.BaseURL)

	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("MODEL_NAME", &cfg.LLM.Model)
	str("LLM_MODEL", &cfg.LLM.Model)
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	switch cfg.LLM.Provider {
	case "gemini":
		str("GEMINI_API_KEY", &cfg.LLM.APIKey)
	default:
		str("OPENROUTER_API_KEY", &cfg.LLM.APIKey)
	}
	str("LLM_API_KEY", &cfg.LLM.APIKey)
	duration("LLM_TIMEOUT", &cfg.LLM.Timeout)

	str("AUDIT_DSN", &cfg.Storage.DSN)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	cfg.Betting.MinConfidence = strings.ToLower(cfg.Betting.MinConfidence)
	return errors.Join(errs...)
}
