// Package serverconfig is torcd's server configuration, layered
// flags > env > file > defaults via spf13/viper and spf13/pflag — the
// precedence the teacher's own pkg/config documents, flattened the way the
// teacher's SimpleConfig flattens 28+ nested structs into one manageable
// one rather than mirroring the original's sectioned TOML.
package serverconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is torcd's flattened server configuration.
type Config struct {
	ListenAddress string `mapstructure:"listen_address"`

	// Backend selects the Storage implementation: "sqlite" for the
	// single-machine deployment (spec §4.1) or "postgres" for a shared
	// cluster deployment.
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`

	// OrphanSweepInterval is the robfig/cron expression driving the Orphan
	// Monitor's tick (spec §5: "Orphan detection intervals are
	// configurable (default 60 seconds)").
	OrphanSweepInterval string `mapstructure:"orphan_sweep_interval"`

	BroadcastCapacity int `mapstructure:"broadcast_capacity"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`

	HtpasswdFile string `mapstructure:"htpasswd_file"`

	LogDevelopment bool `mapstructure:"log_development"`

	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

// Defaults returns the zero-configuration, single-machine Config: SQLite
// backend, local loopback listener, 60-second orphan sweep (spec §5
// default).
func Defaults() Config {
	return Config{
		ListenAddress:       "127.0.0.1:8080",
		Backend:             "sqlite",
		SQLitePath:          "torc.db",
		OrphanSweepInterval: "@every 60s",
		BroadcastCapacity:   512,
		AllowedOrigins:      []string{"*"},
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Load builds a Config from (in increasing priority) the defaults, an
// optional config file, TORC_-prefixed environment variables, and the
// already-parsed flag set — the flags > env > file > defaults precedence
// spec.md §6 assumes of any server process.
func Load(flags *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.New()
	defaults := Defaults()
	v.SetDefault("listen_address", defaults.ListenAddress)
	v.SetDefault("backend", defaults.Backend)
	v.SetDefault("sqlite_path", defaults.SQLitePath)
	v.SetDefault("orphan_sweep_interval", defaults.OrphanSweepInterval)
	v.SetDefault("broadcast_capacity", defaults.BroadcastCapacity)
	v.SetDefault("allowed_origins", defaults.AllowedOrigins)
	v.SetDefault("shutdown_grace_period", defaults.ShutdownGracePeriod)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("TORC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		// BindPFlag explicitly per field rather than BindPFlags: pflag names
		// are dash-separated (listen-address) but mapstructure keys are
		// underscore-separated (listen_address), and viper does not
		// translate between the two on its own.
		binds := map[string]string{
			"listen_address":        "listen-address",
			"backend":               "backend",
			"sqlite_path":           "sqlite-path",
			"postgres_dsn":          "postgres-dsn",
			"orphan_sweep_interval": "orphan-sweep-interval",
			"broadcast_capacity":    "broadcast-capacity",
			"allowed_origins":       "allowed-origins",
			"htpasswd_file":         "htpasswd-file",
			"log_development":       "log-development",
			"shutdown_grace_period": "shutdown-grace-period",
		}
		for key, flagName := range binds {
			f := flags.Lookup(flagName)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", flagName, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// RegisterFlags declares the pflag set Load binds against, matching every
// field above by name.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String("listen-address", d.ListenAddress, "address torcd listens on")
	flags.String("backend", d.Backend, `storage backend: "sqlite" or "postgres"`)
	flags.String("sqlite-path", d.SQLitePath, "path to the SQLite database file (backend=sqlite)")
	flags.String("postgres-dsn", "", "Postgres connection string (backend=postgres)")
	flags.String("orphan-sweep-interval", d.OrphanSweepInterval, "robfig/cron expression for the orphan monitor tick")
	flags.Int("broadcast-capacity", d.BroadcastCapacity, "per-subscriber event broadcaster ring capacity")
	flags.StringSlice("allowed-origins", d.AllowedOrigins, "CORS allowed origins")
	flags.String("htpasswd-file", "", "path to an htpasswd file for local username/password auth")
	flags.Bool("log-development", false, "use zap's development (console) encoder instead of production JSON")
	flags.Duration("shutdown-grace-period", d.ShutdownGracePeriod, "time allowed for in-flight requests to drain on shutdown")
}
