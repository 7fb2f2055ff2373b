package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Gopher0727/GiftList/internal/permission"
)

// EnvPrefix prefixes every environment override, e.g. GIFTLIST_SERVER_PORT.
const EnvPrefix = "GIFTLIST"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Invite    InviteConfig    `mapstructure:"invite"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the storage driver: "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

// InviteConfig configures invite tokens. The secret is kept apart from the
// access token secret so that neither kind of token can pass for the other.
type InviteConfig struct {
	Secret  string        `mapstructure:"secret"`
	TTL     time.Duration `mapstructure:"ttl"`
	BaseURL string        `mapstructure:"base_url"`
}

type KafkaConfig struct {
	Enabled  bool                `mapstructure:"enabled"`
	Brokers  []string            `mapstructure:"brokers"`
	Topic    string              `mapstructure:"topic"`
	Producer KafkaProducerConfig `mapstructure:"producer"`
}

type KafkaProducerConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// LimitsConfig overrides the per-variant item caps given to new groups.
type LimitsConfig struct {
	BasicListMaxItems       int `mapstructure:"basic_list_max_items"`
	GiftListMaxItems        int `mapstructure:"gift_list_max_items"`
	GiftListMaxSecretEach   int `mapstructure:"gift_list_max_secret_each"`
	GroupChildMaxItems      int `mapstructure:"group_child_max_items"`
	GroupChildMaxSecretEach int `mapstructure:"group_child_max_secret_each"`
}

// CapsFor returns the caps a new group of variant v starts with. Zero values
// fall back to the registry defaults.
func (l LimitsConfig) CapsFor(v permission.Variant) (maxItems, maxSecretEach int) {
	p, ok := permission.Lookup(v)
	if !ok {
		return 0, 0
	}
	maxItems, maxSecretEach = p.DefaultMaxListItems, p.DefaultMaxSecretEach

	var items, secret int
	switch v {
	case permission.BasicList:
		items = l.BasicListMaxItems
	case permission.GiftList:
		items, secret = l.GiftListMaxItems, l.GiftListMaxSecretEach
	case permission.GiftGroupChild:
		items, secret = l.GroupChildMaxItems, l.GroupChildMaxSecretEach
	}
	if items > 0 && p.RegularItems {
		maxItems = items
	}
	if secret > 0 && p.SecretItems {
		maxSecretEach = secret
	}
	return maxItems, maxSecretEach
}

type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	MessagePerMinute int  `mapstructure:"message_per_minute"`
	APIPerMinute     int  `mapstructure:"api_per_minute"`
	FailOpen         bool `mapstructure:"fail_open"`
}

type SnowflakeConfig struct {
	DatacenterID int64 `mapstructure:"datacenter_id"`
	WorkerID     int64 `mapstructure:"worker_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "giftlist.db")

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "giftlist")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 50)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	// Secrets have no usable default; declaring the keys lets env overrides reach them.
	v.SetDefault("jwt.secret", "")
	v.SetDefault("invite.secret", "")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 2)

	v.SetDefault("invite.ttl", 7*24*time.Hour)
	v.SetDefault("invite.base_url", "http://localhost:8080/invite")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic", "giftlist.notifications")
	v.SetDefault("kafka.producer.max_retries", 3)
	v.SetDefault("kafka.producer.retry_backoff_ms", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "giftlist.log")

	v.SetDefault("limits.basic_list_max_items", 0)
	v.SetDefault("limits.gift_list_max_items", 0)
	v.SetDefault("limits.gift_list_max_secret_each", 0)
	v.SetDefault("limits.group_child_max_items", 0)
	v.SetDefault("limits.group_child_max_secret_each", 0)

	v.SetDefault("snowflake.datacenter_id", 0)
	v.SetDefault("snowflake.worker_id", 1)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.message_per_minute", 30)
	v.SetDefault("ratelimit.api_per_minute", 300)
	v.SetDefault("ratelimit.fail_open", true)
}

// LoadConfig reads the config file at path (skipped when path is empty),
// applies GIFTLIST_* environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be postgres or sqlite", c.Database.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Invite.Secret == "" {
		errs = append(errs, errors.New("invite.secret is required"))
	}
	if c.Invite.Secret != "" && c.Invite.Secret == c.JWT.Secret {
		errs = append(errs, errors.New("invite.secret must differ from jwt.secret"))
	}
	if c.Invite.TTL <= 0 {
		errs = append(errs, errors.New("invite.ttl must be positive"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	return errors.Join(errs...)
}
