package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Upstream  UpstreamConfig        `mapstructure:"upstream"`
	Cache     CacheConfig           `mapstructure:"cache"`
	Directory DirectoryConfig       `mapstructure:"directory"`
	Cities    map[string]CityConfig `mapstructure:"cities"`
	Logging   LoggingConfig         `mapstructure:"logging"`
	Telemetry TelemetryConfig       `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// UpstreamConfig bounds vendor calls. No vendor call may outlive Timeout.
type UpstreamConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	StationTTL    time.Duration `mapstructure:"station_ttl"`
	VehicleTTL    time.Duration `mapstructure:"vehicle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type DirectoryConfig struct {
	// RefreshInterval triggers a wholesale rebuild of every city directory.
	// Zero disables periodic rebuilds; the startup build still runs.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// CityConfig is the static per-city vendor configuration.
type CityConfig struct {
	Name  string `mapstructure:"name"`
	URL   string `mapstructure:"url"`
	Key   string `mapstructure:"key"`
	API   string `mapstructure:"api"`
	V2Key string `mapstructure:"v2_key"`
	V2IV  string `mapstructure:"v2_iv"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("upstream.timeout", 5*time.Second)
	v.SetDefault("cache.station_ttl", 24*time.Hour)
	v.SetDefault("cache.vehicle_ttl", 30*time.Second)
	v.SetDefault("cache.sweep_interval", 5*time.Minute)
	v.SetDefault("directory.refresh_interval", 24*time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TRANSIT_SERVER_PORT → server.port
	v.SetEnvPrefix("TRANSIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, "upstream.timeout must be positive")
	}
	if c.Cache.StationTTL <= 0 {
		errs = append(errs, "cache.station_ttl must be positive")
	}
	if c.Cache.VehicleTTL <= 0 {
		errs = append(errs, "cache.vehicle_ttl must be positive")
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, "cache.sweep_interval must be positive")
	}
	if len(c.Cities) == 0 {
		errs = append(errs, "at least one city must be configured")
	}

	for city, cc := range c.Cities {
		if cc.URL == "" {
			errs = append(errs, fmt.Sprintf("cities.%s.url is required", city))
		}
		if cc.Key == "" {
			errs = append(errs, fmt.Sprintf("cities.%s.key is required", city))
		}
		switch cc.API {
		case "", "v1":
			// v1 is the default
		case "v2":
			if err := validateAESKeyIV(cc.V2Key, cc.V2IV); err != nil {
				errs = append(errs, fmt.Sprintf("cities.%s: %v", city, err))
			}
		default:
			errs = append(errs, fmt.Sprintf("cities.%s.api must be v1 or v2, got %q", city, cc.API))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validateAESKeyIV decodes the base64 key/IV a v2 city must carry and checks
// the AES block constraints up front so a bad secret fails at startup, not on
// the first live request.
func validateAESKeyIV(b64key, b64iv string) error {
	if b64key == "" || b64iv == "" {
		return fmt.Errorf("v2_key and v2_iv are required for api v2")
	}
	key, err := base64.StdEncoding.DecodeString(b64key)
	if err != nil {
		return fmt.Errorf("v2_key is not valid base64: %v", err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("v2_key must decode to 16, 24, or 32 bytes, got %d", len(key))
	}
	iv, err := base64.StdEncoding.DecodeString(b64iv)
	if err != nil {
		return fmt.Errorf("v2_iv is not valid base64: %v", err)
	}
	if len(iv) != 16 {
		return fmt.Errorf("v2_iv must decode to 16 bytes, got %d", len(iv))
	}
	return nil
}
