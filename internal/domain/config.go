package domain

import "time"

// Config holds the complete Compass configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" koanf:"server"`

	// Tier determines backing services
	Tier Tier `json:"tier" koanf:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" koanf:"repository"`
	Cache      CacheConfig      `json:"cache" koanf:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" koanf:"event_bus"`

	// Engine tunables
	Scoring    ScoringConfig    `json:"scoring" koanf:"scoring"`
	Simulation SimulationConfig `json:"simulation" koanf:"simulation"`

	// Observability
	Logging LoggingConfig `json:"logging" koanf:"logging"`
	Tracing TracingConfig `json:"tracing" koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" koanf:"host"`
	Port         int    `json:"port" koanf:"port"`
	ReadTimeout  int    `json:"readTimeout" koanf:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" koanf:"write_timeout"` // seconds
}

// ScoringConfig holds the tunables of the factor scorer.
//
// The evidence-to-confidence mapping is deliberately configuration, not code:
// confidence = clamp(Base + VolumeWeight*ln(1+n)/ln(1+VolumeSaturation)
//                         + QualityWeight*meanQuality, eps, MaxConfidence).
type ScoringConfig struct {
	// Base confidence granted when a factor's signals are present at all.
	Base float64 `json:"base" koanf:"base"`

	// VolumeWeight scales the evidence-count component.
	VolumeWeight float64 `json:"volumeWeight" koanf:"volume_weight"`

	// VolumeSaturation is the item count at which the volume component
	// reaches its full weight.
	VolumeSaturation int `json:"volumeSaturation" koanf:"volume_saturation"`

	// QualityWeight scales the mean-quality component.
	QualityWeight float64 `json:"qualityWeight" koanf:"quality_weight"`

	// MaxConfidence caps the result.
	MaxConfidence float64 `json:"maxConfidence" koanf:"max_confidence"`

	// MissingConfidence is assigned to neutral-default factors whose
	// required signals were absent. Must stay below LowConfidence.
	MissingConfidence float64 `json:"missingConfidence" koanf:"missing_confidence"`

	// LowConfidence is the threshold under which a layer is reported as
	// evidence-starved rather than legitimately scored.
	LowConfidence float64 `json:"lowConfidence" koanf:"low_confidence"`
}

// SimulationConfig holds Monte Carlo defaults.
type SimulationConfig struct {
	// Iterations is the default sample count per run.
	Iterations int `json:"iterations" koanf:"iterations"`

	// Workers bounds simulation parallelism. 0 means GOMAXPROCS.
	Workers int `json:"workers" koanf:"workers"`

	// Spread is the base sampling spread; per-factor sigma is
	// Spread * (1 - confidence).
	Spread float64 `json:"spread" koanf:"spread"`

	// DiscardThreshold is the discard-rate above which a run is degraded.
	DiscardThreshold float64 `json:"discardThreshold" koanf:"discard_threshold"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`   // debug, info, warn, error
	Format string `json:"format" koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" koanf:"enabled"`
	ServiceName string `json:"serviceName" koanf:"service_name"`
	Endpoint    string `json:"endpoint" koanf:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels.
	TierCommunity Tier = "community"

	// TierPro is the tier with PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./compass.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			Base:              0.2,
			VolumeWeight:      0.4,
			VolumeSaturation:  8,
			QualityWeight:     0.4,
			MaxConfidence:     0.99,
			MissingConfidence: 0.1,
			LowConfidence:     0.3,
		},
		Simulation: SimulationConfig{
			Iterations:       10000,
			Workers:          0,
			Spread:           0.25,
			DiscardThreshold: 0.05,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "compass",
		},
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "compass",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
