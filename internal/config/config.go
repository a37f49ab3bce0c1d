package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 的连接配置。
// Redis 同时承担结果后端（任务状态记录）和按用户的更新推送通道。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 音频文件存储桶名称
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
	PublicURL string `yaml:"publicURL"` // 对外可访问的基础 URL，对象地址为 {publicURL}/{bucket}/{key}
}

// MongoConfig 定义了 MongoDB 的连接配置。
type MongoConfig struct {
	Address  string `yaml:"address"`  // MongoDB 服务器地址
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`    // Kafka Broker 地址列表
	TasksTopic string   `yaml:"tasksTopic"` // 任务队列主题
	GroupID    string   `yaml:"groupID"`    // worker 消费组ID
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`
	MinIO   MinIOConfig `yaml:"minio"`
	MongoDB MongoConfig `yaml:"mongodb"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
	Model  string `yaml:"model"`  // Gemini 模型名称
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // LLM提供商 (例如: "gemini")
	Gemini   GeminiConfig `yaml:"gemini"`
}

// WorkerConfig 定义了后台 worker 的调度与重试配置。
type WorkerConfig struct {
	Concurrency              int `yaml:"concurrency"`              // 并行 worker 数量，每个 worker 一次只处理一个任务
	MaxRetries               int `yaml:"maxRetries"`               // 瞬时失败的最大重试次数
	RetryBaseSeconds         int `yaml:"retryBaseSeconds"`         // 指数退避的基础延迟（秒），延迟为 base * 2^attempt
	VisibilityTimeoutSeconds int `yaml:"visibilityTimeoutSeconds"` // 任务被领取后的可见性超时（秒）
	HistoryWindowLimit       int `yaml:"historyWindowLimit"`       // 会话上下文窗口的最大消息数
	RetentionMaxAgeDays      int `yaml:"retentionMaxAgeDays"`      // 录音保留天数，超过则被清理任务删除
	StatusTTLSeconds         int `yaml:"statusTTLSeconds"`         // 任务到达终态后状态记录的保留时间（秒）
}

// GatewayConfig 定义了网关服务的配置。
type GatewayConfig struct {
	ServerAddress      string `yaml:"serverAddress"`      // HTTP 监听地址
	WaitTimeoutSeconds int    `yaml:"waitTimeoutSeconds"` // 同步等待任务结果的超时（秒）
}

// RateLimiterConfig 定义了网关限流器（令牌桶）的配置。
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"`     // 每秒生成的令牌数
	Capacity int     `yaml:"capacity"` // 桶容量
}

// CircuitBreakerConfig 定义了 LLM 调用熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AppConfig 是整个 YAML 文件的根结构。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	LLM        LLMConfig        `yaml:"llm"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Worker     WorkerConfig     `yaml:"worker"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// RetryBase 返回指数退避的基础延迟。
func (w WorkerConfig) RetryBase() time.Duration {
	return time.Duration(w.RetryBaseSeconds) * time.Second
}

// StatusTTL 返回终态状态记录的保留时间。
func (w WorkerConfig) StatusTTL() time.Duration {
	return time.Duration(w.StatusTTLSeconds) * time.Second
}

// VisibilityTimeout 返回单个任务从被领取到必须完成的时间上限。
func (w WorkerConfig) VisibilityTimeout() time.Duration {
	return time.Duration(w.VisibilityTimeoutSeconds) * time.Second
}

// WaitTimeout 返回同步等待结果的超时时间。
func (g GatewayConfig) WaitTimeout() time.Duration {
	return time.Duration(g.WaitTimeoutSeconds) * time.Second
}

// LoadConfig 从指定路径加载并解析 YAML 配置文件。
// 文件内容先经过环境变量展开（${VAR} 形式），密钥类配置通过环境注入。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}

	expanded := os.ExpandEnv(string(yamlFile))

	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	return cfg, nil
}

// defaultConfig 返回带默认值的配置。
// visibility timeout 在历史快照中从 1800s 到 43200s 不等，因此这里只是一个可调默认值。
func defaultConfig() *AppConfig {
	return &AppConfig{
		Logger: LoggerConfig{Level: "info"},
		Worker: WorkerConfig{
			Concurrency:              1,
			MaxRetries:               3,
			RetryBaseSeconds:         2,
			VisibilityTimeoutSeconds: 1800,
			HistoryWindowLimit:       10,
			RetentionMaxAgeDays:      30,
			StatusTTLSeconds:         86400,
		},
		Gateway: GatewayConfig{
			ServerAddress:      ":8080",
			WaitTimeoutSeconds: 60,
		},
	}
}

// Validate 检查启动所必需的配置项。
// 凭证缺失属于不可恢复错误，进程应当在初始化阶段快速失败，而不是在每个任务中失败。
func (c *AppConfig) Validate() error {
	if c.LLM.Gemini.APIKey == "" {
		return fmt.Errorf("缺少 Gemini API 密钥 (llm.gemini.apiKey)")
	}
	if len(c.Databases.Kafka.Brokers) == 0 {
		return fmt.Errorf("未配置 Kafka brokers")
	}
	if c.Databases.Kafka.TasksTopic == "" {
		return fmt.Errorf("未配置 Kafka 任务主题")
	}
	if c.Databases.MinIO.AccessKey == "" || c.Databases.MinIO.SecretKey == "" {
		return fmt.Errorf("缺少 MinIO 访问凭证")
	}
	if c.Databases.MinIO.Bucket == "" {
		return fmt.Errorf("未配置 MinIO 存储桶")
	}
	if c.Databases.MongoDB.Address == "" {
		return fmt.Errorf("未配置 MongoDB 地址")
	}
	if c.Databases.Redis.Address == "" {
		return fmt.Errorf("未配置 Redis 地址")
	}
	return nil
}
