package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X github.com/edgeflare/sqlrest/pkg/config.Version=..."
var Version = "dev"

// EnvPrefix prefixes environment overrides: rest.listenAddr is read from
// SQLREST_REST_LISTENADDR.
const EnvPrefix = "SQLREST"

// Backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds application-wide configuration
type Config struct {
	Backend  string         `mapstructure:"backend"`
	REST     RESTConfig     `mapstructure:"rest"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type RESTConfig struct {
	ListenAddr       string            `mapstructure:"listenAddr"`
	BaseURL          string            `mapstructure:"baseURL"`
	Debug            bool              `mapstructure:"debug"`
	DeniedUsers      []string          `mapstructure:"deniedUsers"`
	BasicAuth        map[string]string `mapstructure:"basicAuth"`
	InlinePatterns   bool              `mapstructure:"inlinePatterns"`
	StrictRawQuery   bool              `mapstructure:"strictRawQuery"`
	IDField          string            `mapstructure:"idField"`
	StatementTimeout time.Duration     `mapstructure:"statementTimeout"`
	MaxBodyBytes     int64             `mapstructure:"maxBodyBytes"`
	TLS              TLSConfig         `mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

type PostgresConfig struct {
	ConnString      string        `mapstructure:"connString"`
	MaxConns        int32         `mapstructure:"maxConns"`
	ConnectTimeout  time.Duration `mapstructure:"connectTimeout"`
	RetryMaxElapsed time.Duration `mapstructure:"retryMaxElapsed"`
}

type SQLiteConfig struct {
	DataDir         string `mapstructure:"dataDir"`
	DefaultDatabase string `mapstructure:"defaultDatabase"`
	Create          bool   `mapstructure:"create"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Default returns the configuration used for keys that are set nowhere.
func Default() Config {
	return Config{
		Backend: BackendPostgres,
		REST: RESTConfig{
			ListenAddr:   ":8080",
			DeniedUsers:  []string{"root"},
			IDField:      "id",
			MaxBodyBytes: 10 << 20,
		},
		Postgres: PostgresConfig{
			ConnString:      "postgres://localhost:5432/postgres",
			ConnectTimeout:  5 * time.Second,
			RetryMaxElapsed: 15 * time.Second,
		},
		SQLite: SQLiteConfig{
			DataDir: ".",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
	}
}

// Load reads config from file, environment and flags, in increasing order
// of precedence. Flags are bound by their names, e.g. "rest.listenAddr".
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, "", Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("sqlrest")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToCredentialsHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPostgres:
		if c.Postgres.ConnString == "" {
			return errors.New("config: postgres.connString is required")
		}
	case BackendSQLite:
		if c.SQLite.DataDir == "" {
			return errors.New("config: sqlite.dataDir is required")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.REST.BaseURL != "" && !strings.HasPrefix(c.REST.BaseURL, "/") {
		return fmt.Errorf("config: rest.baseURL %q must start with /", c.REST.BaseURL)
	}
	return nil
}

// setDefaults registers every leaf of cfg as a viper default, so that
// AutomaticEnv sees all keys during Unmarshal.
func setDefaults(v *viper.Viper, prefix string, cfg any) {
	rv := reflect.ValueOf(cfg)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		key := rt.Field(i).Tag.Get("mapstructure")
		if prefix != "" {
			key = prefix + "." + key
		}
		field := rv.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			setDefaults(v, key, field.Interface())
			continue
		}
		v.SetDefault(key, field.Interface())
	}
}

// stringToCredentialsHookFunc decodes "user:password,user2:password2"
// into a map, for basic auth credentials given in the environment.
func stringToCredentialsHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(map[string]string{}) {
			return data, nil
		}
		creds := map[string]string{}
		for _, pair := range strings.Split(data.(string), ",") {
			if pair = strings.TrimSpace(pair); pair == "" {
				continue
			}
			user, password, ok := strings.Cut(pair, ":")
			if !ok || user == "" {
				return nil, fmt.Errorf("invalid credentials %q, want user:password", pair)
			}
			creds[user] = password
		}
		return creds, nil
	}
}
