package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Identity    IdentityConfig `yaml:"identity"`
	Log         LogConfig      `yaml:"log"`
}

// ServerConfig は HTTP / gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// GRPCListenAddr が空の場合 gRPC ヘルスサーバーは起動しません。
	GRPCListenAddr     string        `yaml:"grpc_listen_addr"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// IdentityConfig は認証基盤の管理 API に関する設定です。
type IdentityConfig struct {
	URL               string        `yaml:"url"`
	ServiceKey        string        `yaml:"service_key"`
	CreateTimeout     time.Duration `yaml:"-"`
	RequestTimeout    time.Duration `yaml:"-"`
	VerifyInterval    time.Duration `yaml:"-"`
	CreateTimeoutRaw  string        `yaml:"create_timeout"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
	VerifyIntervalRaw string        `yaml:"verify_interval"`
	VerifyAttempts    int           `yaml:"verify_attempts"`
	LookupPageSize    int           `yaml:"lookup_page_size"`
	LookupMaxPages    int           `yaml:"lookup_max_pages"`
}

// LogConfig はロガーの設定です。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IsProduction は本番環境で動作している場合に true を返します。
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvironmentProduction)
}

// Load は .env と指定されたパスの設定ファイルを読み込み、環境変数で上書きします。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDatabase はマイグレーション用にデータベース設定のみを読み込みます。
func LoadDatabase(path string) (*DatabaseConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Database.validateAndNormalize(); err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

func loadDotEnv() error {
	path := os.Getenv("DOTENV_PATH")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func readYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key    string
		target *string
	}{
		{"APP_ENV", &c.Environment},
		{"HTTP_LISTEN_ADDR", &c.Server.ListenAddr},
		{"GRPC_LISTEN_ADDR", &c.Server.GRPCListenAddr},
		{"IDENTITY_URL", &c.Identity.URL},
		{"IDENTITY_SERVICE_KEY", &c.Identity.ServiceKey},
		{"DATABASE_HOST", &c.Database.Host},
		{"DATABASE_PASSWORD", &c.Database.Password},
		{"LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && strings.TrimSpace(v) != "" {
			*o.target = strings.TrimSpace(v)
		}
	}

	if v, ok := os.LookupEnv("DATABASE_PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Database.Port = port
		}
	}
	if v, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Server.AllowedOrigins = splitAndTrim(v)
	}
}

func (c *Config) validateAndNormalize() error {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}

	if err := c.Server.validateAndNormalize(); err != nil {
		return err
	}

	db := &c.Database
	if err := db.validateAndNormalize(); err != nil {
		return err
	}

	if err := c.Identity.validateAndNormalize(); err != nil {
		return err
	}

	if c.Log.Format == "" {
		if c.IsProduction() {
			c.Log.Format = "json"
		} else {
			c.Log.Format = "text"
		}
	}

	return nil
}

func (s *ServerConfig) validateAndNormalize() error {
	if s.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	timeout, err := parseDurationAllowEmpty(s.ShutdownTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: server.shutdown_timeout: %w", err)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	s.ShutdownTimeout = timeout

	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (i *IdentityConfig) validateAndNormalize() error {
	i.URL = strings.TrimSpace(i.URL)
	if i.URL == "" {
		return fmt.Errorf("config: identity.url must be set")
	}
	if _, err := url.ParseRequestURI(i.URL); err != nil {
		return fmt.Errorf("config: identity.url: %w", err)
	}
	if strings.TrimSpace(i.ServiceKey) == "" {
		return fmt.Errorf("config: identity.service_key must be set")
	}

	var err error
	if i.CreateTimeout, err = parseDurationAllowEmpty(i.CreateTimeoutRaw); err != nil {
		return fmt.Errorf("config: identity.create_timeout: %w", err)
	}
	if i.RequestTimeout, err = parseDurationAllowEmpty(i.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("config: identity.request_timeout: %w", err)
	}
	if i.VerifyInterval, err = parseDurationAllowEmpty(i.VerifyIntervalRaw); err != nil {
		return fmt.Errorf("config: identity.verify_interval: %w", err)
	}

	if i.VerifyAttempts < 0 || i.LookupPageSize < 0 || i.LookupMaxPages < 0 {
		return fmt.Errorf("config: identity counts must not be negative")
	}
	if i.VerifyAttempts == 0 {
		i.VerifyAttempts = 3
	}
	if i.VerifyInterval == 0 {
		i.VerifyInterval = 200 * time.Millisecond
	}

	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
