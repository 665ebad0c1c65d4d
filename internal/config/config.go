package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration, loaded from an optional config.yaml
// next to the binary and overridable through FIELDGRID_* env vars.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Auth struct {
		AccessTTL  time.Duration `mapstructure:"access_ttl"`
		RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	} `mapstructure:"auth"`
	Rate struct {
		Burst     int `mapstructure:"burst"`
		PerSecond int `mapstructure:"per_second"`
	} `mapstructure:"rate"`
}

// Load reads the configuration. Missing file is fine; defaults cover a
// development setup with in-memory stores.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("auth.access_ttl", 2*time.Hour)
	v.SetDefault("auth.refresh_ttl", 168*time.Hour)
	v.SetDefault("rate.burst", 50)
	v.SetDefault("rate.per_second", 25)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fieldgrid")
	_ = v.ReadInConfig()

	v.SetEnvPrefix("FIELDGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("addr", "FIELDGRID_ADDR")
	_ = v.BindEnv("database.dsn", "FIELDGRID_PG_DSN")
	_ = v.BindEnv("auth.access_ttl", "FIELDGRID_ACCESS_TTL")
	_ = v.BindEnv("auth.refresh_ttl", "FIELDGRID_REFRESH_TTL")
	_ = v.BindEnv("rate.burst", "FIELDGRID_RATE_BURST")
	_ = v.BindEnv("rate.per_second", "FIELDGRID_RATE_PER_SECOND")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
