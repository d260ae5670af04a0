package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// SyncConfig 定义订单同步管道的核心业务配置
type SyncConfig struct {
	FirstSyncWindow time.Duration // 首次同步回溯的时长，默认 720h（一个月）
	MinInterval     time.Duration // 两次同步之间的最小间隔，默认 30m
	MaxRetries      int           // 模型调用瞬时失败的最大尝试次数，默认 3
	RetryBase       time.Duration // 线性退避的基础间隔，默认 1s
	ExtractGroup    int           // 并发抽取的分组大小，默认 3
	GroupPause      time.Duration // 抽取分组之间的停顿，默认 1s
	DefaultCurrency string        // 模型未给出货币时的回退代码，默认 USD
	LockTTL         time.Duration // 同步互斥锁的过期时间，默认 10m
}

// OracleConfig 定义语言模型服务的配置
type OracleConfig struct {
	BaseURL           string        // OpenAI 兼容接口地址
	APIKey            string        // 鉴权密钥
	Model             string        // 模型名称，默认 gpt-4o-mini
	Timeout           time.Duration // 单次请求超时，默认 30s
	RequestsPerSecond float64       // 请求速率上限，默认 2
}

// MailConfig 定义邮件源的配置
type MailConfig struct {
	ProviderBaseURL string // 邮箱服务商检索 API 地址；为空时启用开发模式 SMTP 缓存
	ProviderAPIKey  string // 服务商鉴权密钥
	SMTPBindAddr    string // 开发模式 SMTP 监听地址，默认 ":2525"
	SMTPDomain      string // 开发模式 SMTP 域名
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，为空时使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 JWT 校验相关配置
// 令牌由外部认证系统签发，这里只做校验并提取用户标识
type JWTConfig struct {
	Secret string // JWT 签名密钥，必须至少 32 字符
	Issuer string // 预期的签发者标识
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Sync     SyncConfig
	Oracle   OracleConfig
	Mail     MailConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: ORDERSYNC_
// 例如: ORDERSYNC_ORACLE_API_KEY, ORDERSYNC_JWT_SECRET
func Load() (*Config, error) {
	// .env 文件是可选的，加载失败静默忽略
	loadEnvFile()

	viper.SetEnvPrefix("ordersync")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("sync.first_sync_window", "720h")
	viper.SetDefault("sync.min_interval", "30m")
	viper.SetDefault("sync.max_retries", 3)
	viper.SetDefault("sync.retry_base", "1s")
	viper.SetDefault("sync.extract_group", 3)
	viper.SetDefault("sync.group_pause", "1s")
	viper.SetDefault("sync.default_currency", "USD")
	viper.SetDefault("sync.lock_ttl", "10m")
	viper.SetDefault("oracle.base_url", "https://api.openai.com/v1")
	viper.SetDefault("oracle.api_key", "")
	viper.SetDefault("oracle.model", "gpt-4o-mini")
	viper.SetDefault("oracle.timeout", "30s")
	viper.SetDefault("oracle.requests_per_second", 2)
	viper.SetDefault("mail.provider_base_url", "")
	viper.SetDefault("mail.provider_api_key", "")
	viper.SetDefault("mail.smtp_bind_addr", ":2525")
	viper.SetDefault("mail.smtp_domain", "ordersync.local")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "ordersync")

	firstSyncWindow, err := time.ParseDuration(viper.GetString("sync.first_sync_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.first_sync_window: %w", err)
	}

	minInterval, err := time.ParseDuration(viper.GetString("sync.min_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.min_interval: %w", err)
	}

	retryBase, err := time.ParseDuration(viper.GetString("sync.retry_base"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.retry_base: %w", err)
	}

	groupPause, err := time.ParseDuration(viper.GetString("sync.group_pause"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.group_pause: %w", err)
	}

	lockTTL, err := time.ParseDuration(viper.GetString("sync.lock_ttl"))
	if err != nil {
		lockTTL = 10 * time.Minute
	}

	oracleTimeout, err := time.ParseDuration(viper.GetString("oracle.timeout"))
	if err != nil {
		oracleTimeout = 30 * time.Second
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	maxRetries := viper.GetInt("sync.max_retries")
	if maxRetries < 1 {
		maxRetries = 3
	}

	extractGroup := viper.GetInt("sync.extract_group")
	if extractGroup < 1 {
		extractGroup = 3
	}

	currency := strings.ToUpper(strings.TrimSpace(viper.GetString("sync.default_currency")))
	if len(currency) != 3 {
		return nil, fmt.Errorf("sync.default_currency must be a 3-letter ISO 4217 code")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set ORDERSYNC_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Sync: SyncConfig{
			FirstSyncWindow: firstSyncWindow,
			MinInterval:     minInterval,
			MaxRetries:      maxRetries,
			RetryBase:       retryBase,
			ExtractGroup:    extractGroup,
			GroupPause:      groupPause,
			DefaultCurrency: currency,
			LockTTL:         lockTTL,
		},
		Oracle: OracleConfig{
			BaseURL:           viper.GetString("oracle.base_url"),
			APIKey:            viper.GetString("oracle.api_key"),
			Model:             viper.GetString("oracle.model"),
			Timeout:           oracleTimeout,
			RequestsPerSecond: viper.GetFloat64("oracle.requests_per_second"),
		},
		Mail: MailConfig{
			ProviderBaseURL: viper.GetString("mail.provider_base_url"),
			ProviderAPIKey:  viper.GetString("mail.provider_api_key"),
			SMTPBindAddr:    viper.GetString("mail.smtp_bind_addr"),
			SMTPDomain:      viper.GetString("mail.smtp_domain"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
			Issuer: viper.GetString("jwt.issuer"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（从子目录运行时）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
