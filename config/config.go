// Package config carga la configuración del motor desde un archivo YAML,
// con overrides de secretos vía .env, siguiendo el mismo esquema de dos
// capas que el scanner original: Load(path) → parsear YAML → aplicar
// overrides de entorno → aplicar defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del motor de trading.
type Config struct {
	Bankroll        float64               `yaml:"bankroll"`
	Risk            RiskConfig            `yaml:"risk"`
	Sizing          SizingConfig          `yaml:"sizing"`
	Diversification DiversificationConfig `yaml:"diversification"`
	Edge            EdgeConfig            `yaml:"edge"`
	Weather         WeatherConfig         `yaml:"weather"`
	Market          MarketConfig          `yaml:"market"`
	Venue           VenueConfig           `yaml:"venue"`
	EventBus        EventBusConfig        `yaml:"event_bus"`
	Storage         StorageConfig         `yaml:"storage"`
	Log             LogConfig             `yaml:"log"`
}

// RiskConfig son los límites de RiskManager (§4.4).
type RiskConfig struct {
	MaxDailyLossPct          float64 `yaml:"max_daily_loss_pct"`
	MaxWeeklyLossPct         float64 `yaml:"max_weekly_loss_pct"`
	MaxMonthlyLossPct        float64 `yaml:"max_monthly_loss_pct"`
	CooldownAfterLossMinutes int     `yaml:"cooldown_after_loss_minutes"`
	MaxSingleTrade           float64 `yaml:"max_single_trade"`
	MinSingleTrade           float64 `yaml:"min_single_trade"`
	MinHoursBeforeResolution float64 `yaml:"min_hours_before_resolution"`
}

// SizingConfig son los parámetros de PositionSizer (§4.5).
type SizingConfig struct {
	KellyFraction       float64 `yaml:"kelly_fraction"`
	MaxPositionPct      float64 `yaml:"max_position_pct"`
	MinPosition         float64 `yaml:"min_position"`
	MaxPosition         float64 `yaml:"max_position"`
	MaxTotalExposurePct float64 `yaml:"max_total_exposure_pct"`
}

// DiversificationConfig son los parámetros de DiversificationFilter (§4.6).
type DiversificationConfig struct {
	MaxTotalExposurePct     float64 `yaml:"max_total_exposure_pct"`
	MaxClusterExposurePct   float64 `yaml:"max_cluster_exposure_pct"`
	MaxSameDayResolutionPct float64 `yaml:"max_same_day_resolution_pct"`
	MinPositionsFor50Pct    int     `yaml:"min_positions_for_50_pct"`
	MinPositionsFor75Pct    int     `yaml:"min_positions_for_75_pct"`
	MinPositionSize         float64 `yaml:"min_position_size"`
}

// EdgeConfig son los umbrales de negociabilidad de EdgeCalculator (§4.3).
type EdgeConfig struct {
	MinEdge      float64 `yaml:"min_edge"`
	MaxEdge      float64 `yaml:"max_edge"`
	MinAgreement float64 `yaml:"min_agreement"`
}

// WeatherConfig apunta al colaborador de pronósticos numéricos (§6.1).
type WeatherConfig struct {
	BaseURL        string   `yaml:"base_url"`
	Models         []string `yaml:"models"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

// MarketConfig apunta al colaborador de descubrimiento de mercados (§6.1).
type MarketConfig struct {
	DiscoveryBaseURL string  `yaml:"discovery_base_url"`
	ScanLimit        int     `yaml:"scan_limit"`
	Tag              string  `yaml:"tag"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec"`
}

// VenueConfig apunta al colaborador de ejecución de órdenes y al feed de precios (§6.1).
type VenueConfig struct {
	BaseURL         string  `yaml:"base_url"`
	PriceFeedWSURL  string  `yaml:"price_feed_ws_url"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

// EventBusConfig controla el servidor WebSocket que difunde los eventos salientes (§6.2).
type EventBusConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig controla dónde se persiste el estado mínimo requerido por §6.4.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CooldownAfterLoss devuelve el cooldown post-pérdida como time.Duration.
func (c *Config) CooldownAfterLoss() time.Duration {
	return time.Duration(c.Risk.CooldownAfterLossMinutes) * time.Minute
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("VENUE_BASE_URL"); v != "" {
		cfg.Venue.BaseURL = v
	}
	if v := os.Getenv("WEATHER_BASE_URL"); v != "" {
		cfg.Weather.BaseURL = v
	}
	if v := os.Getenv("MARKET_DISCOVERY_BASE_URL"); v != "" {
		cfg.Market.DiscoveryBaseURL = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos,
// reproduciendo los defaults del sistema original (§4.3-§4.6).
func setDefaults(cfg *Config) {
	if cfg.Bankroll <= 0 {
		cfg.Bankroll = 1000
	}

	if cfg.Risk.MaxDailyLossPct <= 0 {
		cfg.Risk.MaxDailyLossPct = 0.10
	}
	if cfg.Risk.MaxWeeklyLossPct <= 0 {
		cfg.Risk.MaxWeeklyLossPct = 0.25
	}
	if cfg.Risk.MaxMonthlyLossPct <= 0 {
		cfg.Risk.MaxMonthlyLossPct = 0.40
	}
	if cfg.Risk.CooldownAfterLossMinutes <= 0 {
		cfg.Risk.CooldownAfterLossMinutes = 30
	}
	if cfg.Risk.MaxSingleTrade <= 0 {
		cfg.Risk.MaxSingleTrade = 10.0
	}
	if cfg.Risk.MinSingleTrade <= 0 {
		cfg.Risk.MinSingleTrade = 1.0
	}
	if cfg.Risk.MinHoursBeforeResolution <= 0 {
		cfg.Risk.MinHoursBeforeResolution = 12
	}

	if cfg.Sizing.KellyFraction <= 0 {
		cfg.Sizing.KellyFraction = 0.25
	}
	if cfg.Sizing.MaxPositionPct <= 0 {
		cfg.Sizing.MaxPositionPct = 0.05
	}
	if cfg.Sizing.MinPosition <= 0 {
		cfg.Sizing.MinPosition = 1.0
	}
	if cfg.Sizing.MaxPosition <= 0 {
		cfg.Sizing.MaxPosition = 10.0
	}
	if cfg.Sizing.MaxTotalExposurePct <= 0 {
		cfg.Sizing.MaxTotalExposurePct = 0.75
	}

	if cfg.Diversification.MaxTotalExposurePct <= 0 {
		cfg.Diversification.MaxTotalExposurePct = 0.75
	}
	if cfg.Diversification.MaxClusterExposurePct <= 0 {
		cfg.Diversification.MaxClusterExposurePct = 0.30
	}
	if cfg.Diversification.MaxSameDayResolutionPct <= 0 {
		cfg.Diversification.MaxSameDayResolutionPct = 0.40
	}
	if cfg.Diversification.MinPositionsFor50Pct <= 0 {
		cfg.Diversification.MinPositionsFor50Pct = 2
	}
	if cfg.Diversification.MinPositionsFor75Pct <= 0 {
		cfg.Diversification.MinPositionsFor75Pct = 3
	}
	if cfg.Diversification.MinPositionSize <= 0 {
		cfg.Diversification.MinPositionSize = 1.0
	}

	if cfg.Edge.MinEdge <= 0 {
		cfg.Edge.MinEdge = 0.05
	}
	if cfg.Edge.MaxEdge <= 0 {
		cfg.Edge.MaxEdge = 0.50
	}
	if cfg.Edge.MinAgreement <= 0 {
		cfg.Edge.MinAgreement = 0.60
	}

	if len(cfg.Weather.Models) == 0 {
		cfg.Weather.Models = []string{"gfs", "ecmwf", "icon"}
	}
	if cfg.Weather.BaseURL == "" {
		cfg.Weather.BaseURL = "https://ensemble-api.open-meteo.com/v1/ensemble"
	}
	if cfg.Weather.RateLimitPerSec <= 0 {
		cfg.Weather.RateLimitPerSec = 5
	}

	if cfg.Market.DiscoveryBaseURL == "" {
		cfg.Market.DiscoveryBaseURL = "https://markets.example.com/api"
	}
	if cfg.Market.ScanLimit <= 0 {
		cfg.Market.ScanLimit = 200
	}
	if cfg.Market.RateLimitPerSec <= 0 {
		cfg.Market.RateLimitPerSec = 10
	}

	if cfg.Venue.BaseURL == "" {
		cfg.Venue.BaseURL = "https://venue.example.com/api"
	}
	if cfg.Venue.PriceFeedWSURL == "" {
		cfg.Venue.PriceFeedWSURL = "wss://venue.example.com/ws"
	}
	if cfg.Venue.RateLimitPerSec <= 0 {
		cfg.Venue.RateLimitPerSec = 10
	}

	if cfg.EventBus.ListenAddr == "" {
		cfg.EventBus.ListenAddr = ":8090"
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "weather-trader.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
