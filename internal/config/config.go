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

// DefaultEchoText is the line the avatar speaks when no override is supplied.
const DefaultEchoText = "Hello, how are you? This is a test to demonstrate the real-time speech of " +
	"TAVUS AVATAR that can participate in any conversation."

// Transport names accepted by ECHO_TRANSPORT.
const (
	TransportREST        = "rest"
	TransportDataChannel = "datachannel"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Tavus  TavusConfig
	Echo   EchoConfig
	Log    LogConfig
	AI     AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	tavus, err := loadTavusConfig()
	if err != nil {
		return nil, err
	}

	echo, err := loadEchoConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Tavus:  tavus,
		Echo:   echo,
		Log:    loadLogConfig(),
		AI:     ai,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// TavusConfig describes the conversational-avatar API credentials and endpoints.
type TavusConfig struct {
	APIKey             string
	PersonaID          string
	ReplicaID          string
	BaseURL            string
	BroadcastURL       string
	ConversationPrefix string
	Timeout            time.Duration
	EndTimeout         time.Duration
}

// Validate reports missing credentials required to create conversations.
func (c TavusConfig) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "TAVUS_API_KEY")
	}
	if c.PersonaID == "" {
		missing = append(missing, "TAVUS_PERSONA_ID")
	}
	if c.ReplicaID == "" {
		missing = append(missing, "TAVUS_REPLICA_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tavus configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadTavusConfig() (TavusConfig, error) {
	timeout, err := parseSecondsEnv("TAVUS_TIMEOUT", 30)
	if err != nil {
		return TavusConfig{}, err
	}

	endTimeout, err := parseSecondsEnv("TAVUS_END_TIMEOUT", 20)
	if err != nil {
		return TavusConfig{}, err
	}

	baseURL := strings.TrimRight(getEnvOrDefault("TAVUS_BASE_URL", "https://tavusapi.com"), "/")

	return TavusConfig{
		APIKey:             strings.TrimSpace(os.Getenv("TAVUS_API_KEY")),
		PersonaID:          strings.TrimSpace(os.Getenv("TAVUS_PERSONA_ID")),
		ReplicaID:          strings.TrimSpace(os.Getenv("TAVUS_REPLICA_ID")),
		BaseURL:            baseURL,
		BroadcastURL:       getEnvOrDefault("TAVUS_BROADCAST_URL", baseURL+"/v2/interactions/broadcast"),
		ConversationPrefix: getEnvOrDefault("TAVUS_CONVERSATION_PREFIX", "TAVUS-Echo"),
		Timeout:            timeout,
		EndTimeout:         endTimeout,
	}, nil
}

// EchoConfig 描述播报文本与传输方式。
type EchoConfig struct {
	Text      string
	Transport string
	DailyJS   string
	// PageIdle 页面无请求且无房间连接超过该时长后结束其会话并回收。
	PageIdle time.Duration
}

func loadEchoConfig() (EchoConfig, error) {
	transport := strings.ToLower(getEnvOrDefault("ECHO_TRANSPORT", TransportREST))
	switch transport {
	case TransportREST, TransportDataChannel:
	default:
		return EchoConfig{}, fmt.Errorf("invalid ECHO_TRANSPORT value %q: want %q or %q", transport, TransportREST, TransportDataChannel)
	}

	pageIdle, err := parseSecondsEnv("ECHO_PAGE_IDLE_TIMEOUT", 1800)
	if err != nil {
		return EchoConfig{}, err
	}

	return EchoConfig{
		Text:      getEnvOrDefault("ECHO_TEXT", DefaultEchoText),
		Transport: transport,
		DailyJS:   getEnvOrDefault("DAILY_JS_URL", "https://unpkg.com/@daily-co/daily-js"),
		PageIdle:  pageIdle,
	}, nil
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

// AIConfig 描述大模型相关配置，用于生成播报台词。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseSecondsEnv(key string, defaultSeconds int) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil {
		return time.Duration(defaultSeconds) * time.Second, nil
	}
	if *seconds <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *seconds)
	}
	return time.Duration(*seconds) * time.Second, nil
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
