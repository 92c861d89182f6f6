package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis（工作记忆）的连接配置。
type RedisConfig struct {
	Address   string `yaml:"address"`   // Redis 服务器地址 (例如: "localhost:6379")，为空时使用进程内存储
	Password  string `yaml:"password"`  // Redis 密码
	DB        int    `yaml:"db"`        // Redis 数据库编号
	KeyPrefix string `yaml:"keyPrefix"` // 键前缀，默认 "memory"
}

// SQLConfig 定义了关系型数据库（情景记忆与语义记忆）的连接配置。
type SQLConfig struct {
	Driver          string `yaml:"driver"`          // "mysql" 或 "sqlite"
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	Path            string `yaml:"path"`            // SQLite 文件路径
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MongoConfig 定义了 MongoDB 的连接配置，作为情景记忆的可选文档存储。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 连接 URI
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 情景摘要集合名称
}

// KafkaConfig 定义了 Kafka 的连接配置。
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`    // Kafka Broker 地址列表
	TurnTopic  string   `yaml:"turnTopic"`  // 对话轮次输入主题
	EventTopic string   `yaml:"eventTopic"` // 记忆事件输出主题
	GroupID    string   `yaml:"groupID"`    // 消费者组
	AutoCreate bool     `yaml:"autoCreate"` // 启动时自动创建缺失的主题
}

// DatabaseConfigs 包含所有后端存储的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`
	SQL     SQLConfig   `yaml:"sql"`
	MongoDB MongoConfig `yaml:"mongodb"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// LLMConfig 定义了文本生成后端的配置，摘要器和事实抽取器共用。
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai", "gemini" 或 "ollama"
	Model    string `yaml:"model"`    // 模型名称
	APIKey   string `yaml:"apiKey"`   // API 密钥
	BaseURL  string `yaml:"baseURL"`  // 自定义服务地址
}

// MemoryConfig 定义了记忆编排器的行为参数。
type MemoryConfig struct {
	MaxWorkingMessages        int     `yaml:"maxWorkingMessages"`        // 工作记忆保留的最大消息数
	WorkingTTL                string  `yaml:"workingTTL"`                // 工作记忆过期时间，例如 "24h"
	SummarizeThreshold        int     `yaml:"summarizeThreshold"`        // 触发摘要的消息数
	SummaryMaxLength          int     `yaml:"summaryMaxLength"`          // 摘要最大字符数
	SummaryMaxTokens          int     `yaml:"summaryMaxTokens"`          // 摘要调用的最大输出 token
	ExtractionMaxTokens       int     `yaml:"extractionMaxTokens"`       // 抽取调用的最大输出 token
	RetrievalConfidenceFloor  float64 `yaml:"retrievalConfidenceFloor"`  // 检索时的置信度下限
	ExtractionConfidenceFloor float64 `yaml:"extractionConfidenceFloor"` // 抽取时的置信度下限
	MaxFactsPerExtraction     int     `yaml:"maxFactsPerExtraction"`     // 单次抽取保留的最大事实数
	FactQueryLimit            int     `yaml:"factQueryLimit"`            // 每轮注入的最大事实数
	MaxContextTokens          int     `yaml:"maxContextTokens"`          // 组装上下文的 token 预算
	Workers                   int     `yaml:"workers"`                   // 后台任务 worker 数
	QueueSize                 int     `yaml:"queueSize"`                 // 后台任务队列长度
	LLMTimeout                string  `yaml:"llmTimeout"`                // 单次文本生成调用的超时
	ExtractOnUserTurn         bool    `yaml:"extractOnUserTurn"`         // 用户消息写入后是否异步抽取事实
	EpisodicBackend           string  `yaml:"episodicBackend"`           // "sql" 或 "mongo"
}

// RateLimiterConfig 定义了文本生成调用的令牌桶限流配置。
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了文本生成调用的熔断器配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// MiddlewareConfig 包含文本生成调用外层的保护配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig 是整个 YAML 文件的根结构。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	LLM        LLMConfig        `yaml:"llm"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Memory     MemoryConfig     `yaml:"memory"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// DefaultMemoryConfig 返回记忆编排器的默认参数。
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxWorkingMessages:        10,
		WorkingTTL:                "24h",
		SummarizeThreshold:        7,
		SummaryMaxLength:          500,
		SummaryMaxTokens:          512,
		ExtractionMaxTokens:       384,
		RetrievalConfidenceFloor:  0.7,
		ExtractionConfidenceFloor: 0.8,
		MaxFactsPerExtraction:     3,
		FactQueryLimit:            5,
		MaxContextTokens:          2000,
		Workers:                   2,
		QueueSize:                 64,
		LLMTimeout:                "30s",
		EpisodicBackend:           "sql",
	}
}

// LoadConfig 从指定路径加载并解析 YAML 配置文件，填充默认值并校验。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults 为未设置的字段填充默认值。
func (c *AppConfig) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "memory_service"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Databases.Redis.KeyPrefix == "" {
		c.Databases.Redis.KeyPrefix = "memory"
	}
	if c.Databases.SQL.Driver == "" {
		c.Databases.SQL.Driver = "sqlite"
	}
	if c.Databases.SQL.Driver == "sqlite" && c.Databases.SQL.Path == "" {
		c.Databases.SQL.Path = "memory.db"
	}
	if c.Databases.MongoDB.Collection == "" {
		c.Databases.MongoDB.Collection = "episodic_summaries"
	}
	if c.Databases.Kafka.TurnTopic == "" {
		c.Databases.Kafka.TurnTopic = "chat_turns"
	}
	if c.Databases.Kafka.EventTopic == "" {
		c.Databases.Kafka.EventTopic = "memory_events"
	}
	if c.Databases.Kafka.GroupID == "" {
		c.Databases.Kafka.GroupID = "memory-service"
	}
	c.Memory.ApplyDefaults()
}

// ApplyDefaults 为未设置的记忆参数填充默认值。
func (m *MemoryConfig) ApplyDefaults() {
	d := DefaultMemoryConfig()
	if m.MaxWorkingMessages == 0 {
		m.MaxWorkingMessages = d.MaxWorkingMessages
	}
	if m.WorkingTTL == "" {
		m.WorkingTTL = d.WorkingTTL
	}
	if m.SummarizeThreshold == 0 {
		m.SummarizeThreshold = d.SummarizeThreshold
	}
	if m.SummaryMaxLength == 0 {
		m.SummaryMaxLength = d.SummaryMaxLength
	}
	if m.SummaryMaxTokens == 0 {
		m.SummaryMaxTokens = d.SummaryMaxTokens
	}
	if m.ExtractionMaxTokens == 0 {
		m.ExtractionMaxTokens = d.ExtractionMaxTokens
	}
	if m.RetrievalConfidenceFloor == 0 {
		m.RetrievalConfidenceFloor = d.RetrievalConfidenceFloor
	}
	if m.ExtractionConfidenceFloor == 0 {
		m.ExtractionConfidenceFloor = d.ExtractionConfidenceFloor
	}
	if m.MaxFactsPerExtraction == 0 {
		m.MaxFactsPerExtraction = d.MaxFactsPerExtraction
	}
	if m.FactQueryLimit == 0 {
		m.FactQueryLimit = d.FactQueryLimit
	}
	if m.MaxContextTokens == 0 {
		m.MaxContextTokens = d.MaxContextTokens
	}
	if m.Workers == 0 {
		m.Workers = d.Workers
	}
	if m.QueueSize == 0 {
		m.QueueSize = d.QueueSize
	}
	if m.LLMTimeout == "" {
		m.LLMTimeout = d.LLMTimeout
	}
	if m.EpisodicBackend == "" {
		m.EpisodicBackend = d.EpisodicBackend
	}
}

// Validate 校验配置中不可能成立的取值。
func (c *AppConfig) Validate() error {
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	switch c.Databases.SQL.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("不支持的 SQL 驱动: %s", c.Databases.SQL.Driver)
	}
	if c.Middleware.CircuitBreaker.Enabled {
		if _, err := time.ParseDuration(c.Middleware.CircuitBreaker.Timeout); err != nil {
			return fmt.Errorf("circuitBreaker.timeout 无效: %w", err)
		}
	}
	if c.Middleware.RateLimiter.Enabled && (c.Middleware.RateLimiter.Rate <= 0 || c.Middleware.RateLimiter.Capacity <= 0) {
		return fmt.Errorf("rateLimiter 的 rate 和 capacity 必须为正数")
	}
	return nil
}

// Validate 校验记忆参数。
func (m *MemoryConfig) Validate() error {
	if m.MaxWorkingMessages <= 0 {
		return fmt.Errorf("memory.maxWorkingMessages 必须为正数")
	}
	if m.SummarizeThreshold <= 0 {
		return fmt.Errorf("memory.summarizeThreshold 必须为正数")
	}
	if !inUnitInterval(m.RetrievalConfidenceFloor) {
		return fmt.Errorf("memory.retrievalConfidenceFloor 必须在 (0,1] 之间")
	}
	if !inUnitInterval(m.ExtractionConfidenceFloor) {
		return fmt.Errorf("memory.extractionConfidenceFloor 必须在 (0,1] 之间")
	}
	if m.MaxFactsPerExtraction <= 0 || m.FactQueryLimit <= 0 || m.MaxContextTokens <= 0 {
		return fmt.Errorf("memory 的事实数量与 token 预算必须为正数")
	}
	if m.Workers <= 0 || m.QueueSize <= 0 {
		return fmt.Errorf("memory.workers 和 memory.queueSize 必须为正数")
	}
	if _, err := time.ParseDuration(m.WorkingTTL); err != nil {
		return fmt.Errorf("memory.workingTTL 无效: %w", err)
	}
	if _, err := time.ParseDuration(m.LLMTimeout); err != nil {
		return fmt.Errorf("memory.llmTimeout 无效: %w", err)
	}
	switch m.EpisodicBackend {
	case "sql", "mongo":
	default:
		return fmt.Errorf("不支持的情景记忆后端: %s", m.EpisodicBackend)
	}
	return nil
}

// WorkingTTLDuration 返回解析后的工作记忆 TTL。
func (m MemoryConfig) WorkingTTLDuration() time.Duration {
	d, err := time.ParseDuration(m.WorkingTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LLMTimeoutDuration 返回解析后的文本生成超时。
func (m MemoryConfig) LLMTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(m.LLMTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// TimeoutDuration 返回熔断器从打开到半开的等待时间。
func (c CircuitBreakerConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func inUnitInterval(v float64) bool {
	return v > 0 && v <= 1
}
