package config

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/combustion"
	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "heatbox.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds gorm sqlite backend settings. An empty Path keeps the
// database in memory and dumps it to DumpDir.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpDir      string        `json:"dumpDir" mapstructure:"dumpDir"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebSocketConfig holds streaming backend settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// DBConfig holds postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds influxdb connection settings
type InfluxConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL is the server address built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// StorageConfig selects and configures the recording backend.
// DB and Influx come from the top-level db and influx sections.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	DB        DBConfig        `json:"db" mapstructure:"db"`
	Influx    InfluxConfig    `json:"influx" mapstructure:"influx"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./heatboxlogs")

	viper.SetDefault("grid.depth", 8)
	viper.SetDefault("grid.width", 8)
	viper.SetDefault("grid.height", 4)
	viper.SetDefault("grid.spacing", 100.0)
	viper.SetDefault("grid.origin", []float64{0, 0, 0})

	viper.SetDefault("sim.name", "heatbox")
	viper.SetDefault("sim.transferRate", 0.16)
	viper.SetDefault("sim.interval", "1s")
	viper.SetDefault("sim.hitQueryRequired", core.HitQueryRequired)
	viper.SetDefault("sim.hitQueryTolerance", core.HitQueryTolerance)

	viper.SetDefault("scenario.path", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpDir", "./recordings")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ingest")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "heatbox")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "heatbox")
	viper.SetDefault("influx.bucket", "heatbox")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "heatbox")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the storage section together with the db and
// influx connection settings. Keys are read one by one so partially
// overridden sections keep their defaults.
func GetStorageConfig() (StorageConfig, error) {
	cfg := StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpDir:      viper.GetString("storage.sqlite.dumpDir"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		Influx: InfluxConfig{
			Host:     viper.GetString("influx.host"),
			Port:     viper.GetString("influx.port"),
			Protocol: viper.GetString("influx.protocol"),
			Token:    viper.GetString("influx.token"),
			Org:      viper.GetString("influx.org"),
			Bucket:   viper.GetString("influx.bucket"),
		},
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("error parsing storage config: empty storage.type")
	}
	return cfg, nil
}

// GetSimConfig builds the simulation config from the grid and sim sections.
func GetSimConfig() (sim.Config, error) {
	cfg := sim.Config{
		Name: viper.GetString("sim.name"),
		Dims: core.Dims{
			Depth:  viper.GetInt("grid.depth"),
			Width:  viper.GetInt("grid.width"),
			Height: viper.GetInt("grid.height"),
		},
		Spacing:      viper.GetFloat64("grid.spacing"),
		TransferRate: viper.GetFloat64("sim.transferRate"),
		Interval:     viper.GetDuration("sim.interval"),
		Quota: combustion.Quota{
			Required:  viper.GetInt("sim.hitQueryRequired"),
			Tolerance: viper.GetInt("sim.hitQueryTolerance"),
		},
	}

	var origin []float64
	if err := viper.UnmarshalKey("grid.origin", &origin); err != nil {
		return cfg, fmt.Errorf("error parsing grid.origin: %w", err)
	}
	if len(origin) != 0 && len(origin) != 3 {
		return cfg, fmt.Errorf("grid.origin must have 3 components, got %d", len(origin))
	}
	if len(origin) == 3 {
		cfg.Origin = mgl64.Vec3{origin[0], origin[1], origin[2]}
	}

	return cfg, cfg.Validate()
}
