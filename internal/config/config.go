// Package config 负责读取和校验 YAML 格式的配置文件
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/utils"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

var (
	ErrConfigCreated = errors.New("the configuration file does not exist and has been created, please try again after editing it")
	ErrInvalidConfig = errors.New("invalid configuration")
)

type AppConfig struct {
	Name      string `yaml:"name"`
	DebugMode bool   `yaml:"debug_mode"`
	Listen    string `yaml:"listen"`
	LogDir    string `yaml:"log_dir"`
}

type BrokerConfig struct {
	MaxPendingMessages  int     `yaml:"max_pending_messages"`
	MaxRetainedMessages int     `yaml:"max_retained_messages"`
	OutboxSize          int     `yaml:"outbox_size"`
	ReapInterval        string  `yaml:"reap_interval"`
	KeepAliveGrace      float64 `yaml:"keepalive_grace"`
	PublishRate         float64 `yaml:"publish_rate"`
	PublishBurst        int     `yaml:"publish_burst"`
	MaxConnections      int     `yaml:"max_connections"`

	reapInterval time.Duration
}

func (b *BrokerConfig) ReapIntervalDuration() time.Duration {
	return b.reapInterval
}

type DatabaseConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Host             string `yaml:"host"`
	Port             uint64 `yaml:"port"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	Database         string `yaml:"database"`
	UseTLS           bool   `yaml:"use_tls"`
	ConnectTimeout   string `yaml:"connect_timeout"`
	OperationTimeout string `yaml:"operation_timeout"`
	MinPoolSize      uint64 `yaml:"min_pool_size"`
	MaxPoolSize      uint64 `yaml:"max_pool_size"`
	ACLCollection    string `yaml:"acl_collection"`
	ACLCacheSize     int    `yaml:"acl_cache_size"`
	ACLCacheTTL      string `yaml:"acl_cache_ttl"`
	DefaultAllow     bool   `yaml:"default_allow"`

	connectTimeout   time.Duration
	operationTimeout time.Duration
	aclCacheTTL      time.Duration
}

func (d *DatabaseConfig) ConnectTimeoutDuration() time.Duration   { return d.connectTimeout }
func (d *DatabaseConfig) OperationTimeoutDuration() time.Duration { return d.operationTimeout }
func (d *DatabaseConfig) ACLCacheTTLDuration() time.Duration      { return d.aclCacheTTL }

type Config struct {
	App      AppConfig      `yaml:"app"`
	Broker   BrokerConfig   `yaml:"broker"`
	Database DatabaseConfig `yaml:"database"`
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:   "lifestream-broker",
			Listen: ":1883",
			LogDir: "logs",
		},
		Broker: BrokerConfig{
			MaxPendingMessages:  1000,
			MaxRetainedMessages: 10000,
			OutboxSize:          1024,
			ReapInterval:        "30s",
			KeepAliveGrace:      1.5,
			PublishRate:         0,
			PublishBurst:        100,
			MaxConnections:      0,
		},
		Database: DatabaseConfig{
			Enabled:          false,
			Host:             "127.0.0.1",
			Port:             27017,
			Database:         "lifestream",
			ConnectTimeout:   "10s",
			OperationTimeout: "5s",
			MinPoolSize:      1,
			MaxPoolSize:      10,
			ACLCollection:    "acl",
			ACLCacheSize:     4096,
			ACLCacheTTL:      "1m",
			DefaultAllow:     true,
		},
	}
}

// ReadConfig 读取 path 处的配置，未出现的字段保留默认值。
// 文件不存在时写入一份默认配置并返回 ErrConfigCreated
func ReadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := writeDefault(path, cfg); err != nil {
			return nil, err
		}
		return nil, ErrConfigCreated
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("the configuration file does not contain valid YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeDefault(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write default config %s: %w", path, err)
	}
	return nil
}

// Validate 检查取值范围并解析所有时间字段
func (c *Config) Validate() error {
	if c.App.Listen == "" {
		return fmt.Errorf("%w: app.listen is empty", ErrInvalidConfig)
	}

	b := &c.Broker
	if b.MaxPendingMessages <= 0 {
		return fmt.Errorf("%w: broker.max_pending_messages must be positive", ErrInvalidConfig)
	}
	if b.MaxRetainedMessages <= 0 {
		return fmt.Errorf("%w: broker.max_retained_messages must be positive", ErrInvalidConfig)
	}
	// 恢复会话时积压队列要能一次写入发送缓冲
	if b.OutboxSize < b.MaxPendingMessages {
		return fmt.Errorf("%w: broker.outbox_size must not be below max_pending_messages", ErrInvalidConfig)
	}
	if b.KeepAliveGrace < 1 {
		return fmt.Errorf("%w: broker.keepalive_grace must be at least 1", ErrInvalidConfig)
	}
	if b.PublishRate < 0 || b.PublishBurst < 0 || b.MaxConnections < 0 {
		return fmt.Errorf("%w: broker limits must not be negative", ErrInvalidConfig)
	}
	if b.PublishRate > 0 && b.PublishBurst == 0 {
		return fmt.Errorf("%w: broker.publish_burst must be positive when publish_rate is set", ErrInvalidConfig)
	}
	var err error
	if b.reapInterval, err = parseDuration("broker.reap_interval", b.ReapInterval); err != nil {
		return err
	}
	if b.reapInterval <= 0 {
		return fmt.Errorf("%w: broker.reap_interval must be positive", ErrInvalidConfig)
	}

	d := &c.Database
	if !d.Enabled {
		return nil
	}
	if d.Host == "" || d.Database == "" || d.ACLCollection == "" {
		return fmt.Errorf("%w: database.host, database.database and database.acl_collection are required", ErrInvalidConfig)
	}
	if d.Port == 0 || d.Port > 65535 {
		return fmt.Errorf("%w: database.port %d out of range", ErrInvalidConfig, d.Port)
	}
	if d.MaxPoolSize < d.MinPoolSize {
		return fmt.Errorf("%w: database.max_pool_size is below min_pool_size", ErrInvalidConfig)
	}
	if d.ACLCacheSize <= 0 {
		return fmt.Errorf("%w: database.acl_cache_size must be positive", ErrInvalidConfig)
	}
	if d.connectTimeout, err = parseDuration("database.connect_timeout", d.ConnectTimeout); err != nil {
		return err
	}
	if d.operationTimeout, err = parseDuration("database.operation_timeout", d.OperationTimeout); err != nil {
		return err
	}
	if d.aclCacheTTL, err = parseDuration("database.acl_cache_ttl", d.ACLCacheTTL); err != nil {
		return err
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := utils.ParseStringTime(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, field, err)
	}
	return d, nil
}
