// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Resolution    ResolutionConfig    `mapstructure:"resolution"`
	Delegation    DelegationConfig    `mapstructure:"delegation"`
	WorkItems     WorkItemsConfig     `mapstructure:"workitems"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 取值 mysql 或 sqlite，sqlite 用于本地开发。
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储 SQLite 数据库文件路径。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储校验调用方身份令牌所用的密钥。
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储组织变更事件所用的 Kafka 配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储审计检索索引的配置。
type ElasticsearchConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Addresses  string `mapstructure:"addresses"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	AuditIndex string `mapstructure:"audit_index"`
}

// MinIOConfig 存储审计导出所用对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ResolutionConfig 控制有效责任人解析缓存。
type ResolutionConfig struct {
	// Backend 取值 redis 或 memory。
	Backend      string        `mapstructure:"backend"`
	StalenessSLA time.Duration `mapstructure:"staleness_sla"`
	VacantTTL    time.Duration `mapstructure:"vacant_ttl"`
}

// DelegationConfig 控制授权过期的后台清理。
type DelegationConfig struct {
	// SweepInterval 为 0 时不启动后台清理，过期仍由读路径惰性处理。
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// WorkItemsConfig 存储工作项改派服务的地址。
type WorkItemsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "org-change-events")
	v.SetDefault("kafka.group_id", "org-authority-go-consumer")
	v.SetDefault("elasticsearch.audit_index", "org_audit_logs")
	v.SetDefault("minio.bucket_name", "org-audit-exports")
	v.SetDefault("resolution.backend", "redis")
	v.SetDefault("resolution.staleness_sla", 60*time.Second)
	v.SetDefault("resolution.vacant_ttl", 5*time.Second)
	v.SetDefault("workitems.timeout", 10*time.Second)
}

// Load 从指定路径读取 YAML 配置，环境变量 ORGAUTH_* 可覆盖同名键。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ORGAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.Resolution.StalenessSLA <= 0 {
		return cfg, fmt.Errorf("resolution.staleness_sla must be positive")
	}
	return cfg, nil
}

// Init 初始化配置加载，失败时直接 panic，供 main 使用。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
