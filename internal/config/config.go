package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// AI_PROVIDER 可选的模型提供方。
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// STORE_DRIVER 可选的存储驱动。
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// DefaultGeminiModels 是未设置 GEMINI_MODELS 时按顺序尝试的候选模型。
var DefaultGeminiModels = []string{"gemini-1.5-flash", "gemini-1.5-flash-001", "gemini-1.5-pro", "gemini-pro"}

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Triage  TriageConfig
	Payment PaymentConfig
	Store   StoreConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	triage, err := loadTriageConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Log:     loadLogConfig(),
		AI:      ai,
		Triage:  triage,
		Payment: loadPaymentConfig(),
		Store:   store,
	}, nil
}

// ServerConfig 描述 HTTP 服务及其入口策略。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	AgentToken     string
	RateLimitRPS   float64
	RateLimitBurst int
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "10000"
	}

	var addr string
	switch {
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		addr = port
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		addr = ":" + port
	}

	rps, err := parseFloatEnv("RATE_LIMIT_RPS", 2)
	if err != nil {
		return ServerConfig{}, err
	}
	burst, err := parseIntEnv("RATE_LIMIT_BURST", 5)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:           addr,
		AllowedOrigins: parseListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AgentToken:     strings.TrimSpace(os.Getenv("AGENT_TOKEN")),
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
	}, nil
}

// LogConfig 描述根日志的级别和输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider           string
	GoogleAPIKey       string
	GeminiModels       []string
	APIKey             string
	AccessKey          string
	SecretKey          string
	ArkModels          []string
	BaseURL            string
	Region             string
	Temperature        *float64
	TopP               *float64
	MaxTokens          *int
	Timeout            time.Duration
	CategoryLLMEnabled bool
}

// Enabled 表示所选提供方是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return len(c.ArkModels) > 0 && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	default:
		return c.GoogleAPIKey != "" && len(c.GeminiModels) > 0
	}
}

// Candidates 返回所选提供方按优先级排列的模型标识。
func (c AIConfig) Candidates() []string {
	if c.Provider == ProviderArk {
		return append([]string(nil), c.ArkModels...)
	}
	return append([]string(nil), c.GeminiModels...)
}

// NewArkChatModel 使用配置创建一个绑定到指定模型的 Ark 实例。
func (c AIConfig) NewArkChatModel(ctx context.Context, modelName string) (model.ChatModel, error) {
	if modelName == "" {
		return nil, fmt.Errorf("ark model name is required")
	}
	if c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
		return nil, fmt.Errorf("ark credentials missing, provide ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       modelName,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))
	if provider != ProviderGemini && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("GENERATION_TIMEOUT", 25*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	categoryLLM, err := parseBoolEnv("CATEGORY_LLM_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	var arkDefault []string
	if single := strings.TrimSpace(os.Getenv("Model")); single != "" {
		arkDefault = []string{single}
	}

	return AIConfig{
		Provider:           provider,
		GoogleAPIKey:       strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		GeminiModels:       parseListEnv("GEMINI_MODELS", DefaultGeminiModels),
		APIKey:             strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:          strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:          strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModels:          parseListEnv("ARK_MODELS", arkDefault),
		BaseURL:            getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:             getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:        temperature,
		TopP:               topP,
		MaxTokens:          maxTokens,
		Timeout:            timeout,
		CategoryLLMEnabled: categoryLLM,
	}, nil
}

// TriageConfig 描述分诊对话流程的参数。
type TriageConfig struct {
	ScriptPath  string
	TypingDelay time.Duration
}

func loadTriageConfig() (TriageConfig, error) {
	delay, err := parseDurationEnv("TYPING_DELAY", time.Second)
	if err != nil {
		return TriageConfig{}, err
	}
	if delay < 0 {
		return TriageConfig{}, fmt.Errorf("invalid TYPING_DELAY value %q: must not be negative", delay)
	}

	return TriageConfig{
		ScriptPath:  strings.TrimSpace(os.Getenv("TRIAGE_SCRIPT_PATH")),
		TypingDelay: delay,
	}, nil
}

// PaymentConfig 描述 Stripe 密钥和支付回跳地址。
type PaymentConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Enabled 表示是否配置了 Stripe 密钥。
func (c PaymentConfig) Enabled() bool {
	return c.SecretKey != ""
}

func loadPaymentConfig() PaymentConfig {
	return PaymentConfig{
		SecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		WebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		SuccessURL:    getEnvOrDefault("PAYMENT_SUCCESS_URL", "http://localhost:3000/?payment=success"),
		CancelURL:     getEnvOrDefault("PAYMENT_CANCEL_URL", "http://localhost:3000/?payment=cancelled"),
	}
}

// StoreConfig 描述会话持久化存储和归档协程池。
type StoreConfig struct {
	Driver         string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	RedisTTL       time.Duration
	ArchiveWorkers int
	ArchiveQueue   int
	ArchiveTimeout time.Duration
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverSQLite))
	switch driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}

	redisDB, err := parseIntEnv("REDIS_DB", 0)
	if err != nil {
		return StoreConfig{}, err
	}
	redisTTL, err := parseDurationEnv("REDIS_TTL", 0)
	if err != nil {
		return StoreConfig{}, err
	}
	workers, err := parseIntEnv("ARCHIVE_WORKERS", 4)
	if err != nil {
		return StoreConfig{}, err
	}
	if workers < 1 {
		workers = 1
	}
	queue, err := parseIntEnv("ARCHIVE_QUEUE_SIZE", 256)
	if err != nil {
		return StoreConfig{}, err
	}
	if queue < 1 {
		queue = 1
	}
	archiveTimeout, err := parseDurationEnv("ARCHIVE_TIMEOUT", 5*time.Second)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Driver:         driver,
		SQLitePath:     getEnvOrDefault("SQLITE_PATH", "data/ava.db"),
		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        redisDB,
		RedisPrefix:    getEnvOrDefault("REDIS_PREFIX", "ava:session:"),
		RedisTTL:       redisTTL,
		ArchiveWorkers: workers,
		ArchiveQueue:   queue,
		ArchiveTimeout: archiveTimeout,
	}

	if cfg.Driver == DriverRedis && cfg.RedisAddr == "" {
		return StoreConfig{}, fmt.Errorf("REDIS_ADDR is required when STORE_DRIVER=redis")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	val, err := parseOptionalFloatEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
