package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/betbot/wetrade/pkg/secretstore"
)

// MaxQuoteSymbols 单条推送连接最多订阅的标的数
const MaxQuoteSymbols = 25

// SchwabConfig REST/认证相关
type SchwabConfig struct {
	APIKey            string
	AppSecret         string
	BaseURL           string
	AccountKey        string // 账户 hash；为空时取第一个账户
	AccessToken       string
	RequestsPerMinute int
	Timeout           time.Duration
	RetryCount        int
}

// ProxyConfig 代理配置
type ProxyConfig struct {
	Host string
	Port int
}

// URL http://host:port
func (p *ProxyConfig) URL() string {
	if p == nil || p.Host == "" || p.Port <= 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
}

// StreamingConfig 推送连接
type StreamingConfig struct {
	AuthRetries    int
	AuthBackoff    time.Duration
	MaxReconnects  int
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration
	Proxy          *ProxyConfig
}

// OrdersConfig 订单等待
type OrdersConfig struct {
	RecheckDelay time.Duration // 订阅后延迟复查
	PollInterval time.Duration // 等待状态的兜底轮询间隔
}

// QuotesConfig 行情
type QuotesConfig struct {
	Symbols      []string
	PollInterval time.Duration
}

type LogConfig struct {
	Level      string
	File       string
	ByDay      bool
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type Config struct {
	Schwab         SchwabConfig
	Streaming      StreamingConfig
	Orders         OrdersConfig
	Quotes         QuotesConfig
	Log            LogConfig
	JournalPath    string // 为空则不写 journal
	SecretStore    string // badger 目录；为空则不使用
	SecretKey      string // badger 加密密钥（hex/base64 32 字节）
	StatusListen   string // 状态服务监听地址；为空则不启动
	DebugListen    string // expvar/pprof；为空则不启动
	MonitorOnStart bool   // 启动时即开始监听账户推送
}

// ConfigFile 配置文件结构（YAML/JSON）
type ConfigFile struct {
	Schwab struct {
		APIKey            string `yaml:"api_key" json:"api_key"`
		AppSecret         string `yaml:"app_secret" json:"app_secret"`
		BaseURL           string `yaml:"base_url" json:"base_url"`
		AccountKey        string `yaml:"account_key" json:"account_key"`
		AccessToken       string `yaml:"access_token" json:"access_token"`
		RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
		TimeoutSeconds    int    `yaml:"timeout_seconds" json:"timeout_seconds"`
		RetryCount        int    `yaml:"retry_count" json:"retry_count"`
	} `yaml:"schwab" json:"schwab"`
	Streaming struct {
		AuthRetries        int `yaml:"auth_retries" json:"auth_retries"`
		AuthBackoffMs      int `yaml:"auth_backoff_ms" json:"auth_backoff_ms"`
		MaxReconnects      int `yaml:"max_reconnects" json:"max_reconnects"`
		ReconnectDelayMs   int `yaml:"reconnect_delay_ms" json:"reconnect_delay_ms"`
		ReadTimeoutSeconds int `yaml:"read_timeout_seconds" json:"read_timeout_seconds"`
		Proxy              struct {
			Host string `yaml:"host" json:"host"`
			Port int    `yaml:"port" json:"port"`
		} `yaml:"proxy" json:"proxy"`
	} `yaml:"streaming" json:"streaming"`
	Orders struct {
		RecheckDelayMs int `yaml:"recheck_delay_ms" json:"recheck_delay_ms"`
		PollIntervalMs int `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	} `yaml:"orders" json:"orders"`
	Quotes struct {
		Symbols        []string `yaml:"symbols" json:"symbols"`
		PollIntervalMs int      `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	} `yaml:"quotes" json:"quotes"`
	LogLevel       string `yaml:"log_level" json:"log_level"`
	LogFile        string `yaml:"log_file" json:"log_file"`
	LogByDay       *bool  `yaml:"log_by_day" json:"log_by_day"`
	JournalPath    string `yaml:"journal_path" json:"journal_path"`
	SecretStore    string `yaml:"secret_store" json:"secret_store"`
	StatusListen   string `yaml:"status_listen" json:"status_listen"`
	DebugListen    string `yaml:"debug_listen" json:"debug_listen"`
	MonitorOnStart bool   `yaml:"monitor_on_start" json:"monitor_on_start"`
}

// LoadFromFile 加载配置。优先级：环境变量 > 配置文件 > 默认值。
// filePath 为空时只用环境变量和默认值。
func LoadFromFile(filePath string) (*Config, error) {
	cf := &ConfigFile{}
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	logByDay := true
	if cf.LogByDay != nil {
		logByDay = *cf.LogByDay
	}

	c := &Config{
		Schwab: SchwabConfig{
			APIKey:            getEnv("SCHWAB_API_KEY", cf.Schwab.APIKey),
			AppSecret:         getEnv("SCHWAB_APP_SECRET", cf.Schwab.AppSecret),
			BaseURL:           getEnv("SCHWAB_BASE_URL", orDefault(cf.Schwab.BaseURL, "https://api.schwabapi.com")),
			AccountKey:        getEnv("SCHWAB_ACCOUNT_KEY", cf.Schwab.AccountKey),
			AccessToken:       getEnv("SCHWAB_ACCESS_TOKEN", cf.Schwab.AccessToken),
			RequestsPerMinute: parseIntEnv("SCHWAB_REQUESTS_PER_MINUTE", orDefaultInt(cf.Schwab.RequestsPerMinute, 120)),
			Timeout:           seconds(parseIntEnv("SCHWAB_TIMEOUT_SECONDS", orDefaultInt(cf.Schwab.TimeoutSeconds, 10))),
			RetryCount:        parseIntEnv("SCHWAB_RETRY_COUNT", orDefaultInt(cf.Schwab.RetryCount, 3)),
		},
		Streaming: StreamingConfig{
			AuthRetries:    parseIntEnv("STREAM_AUTH_RETRIES", orDefaultInt(cf.Streaming.AuthRetries, 3)),
			AuthBackoff:    millis(parseIntEnv("STREAM_AUTH_BACKOFF_MS", orDefaultInt(cf.Streaming.AuthBackoffMs, 500))),
			MaxReconnects:  parseIntEnv("STREAM_MAX_RECONNECTS", orDefaultInt(cf.Streaming.MaxReconnects, 10)),
			ReconnectDelay: millis(parseIntEnv("STREAM_RECONNECT_DELAY_MS", orDefaultInt(cf.Streaming.ReconnectDelayMs, 1000))),
			ReadTimeout:    seconds(parseIntEnv("STREAM_READ_TIMEOUT_SECONDS", orDefaultInt(cf.Streaming.ReadTimeoutSeconds, 30))),
			Proxy:          parseProxy(cf),
		},
		Orders: OrdersConfig{
			RecheckDelay: millis(parseIntEnv("ORDER_RECHECK_DELAY_MS", orDefaultInt(cf.Orders.RecheckDelayMs, 5000))),
			PollInterval: millis(parseIntEnv("ORDER_POLL_INTERVAL_MS", orDefaultInt(cf.Orders.PollIntervalMs, 200))),
		},
		Quotes: QuotesConfig{
			Symbols:      parseSymbols(getEnv("QUOTE_SYMBOLS", strings.Join(cf.Quotes.Symbols, ","))),
			PollInterval: millis(parseIntEnv("QUOTE_POLL_INTERVAL_MS", orDefaultInt(cf.Quotes.PollIntervalMs, 200))),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", orDefault(cf.LogLevel, "info")),
			File:       getEnv("LOG_FILE", cf.LogFile),
			ByDay:      parseBoolEnv("LOG_BY_DAY", logByDay),
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		JournalPath:    getEnv("JOURNAL_PATH", cf.JournalPath),
		SecretStore:    getEnv("SECRET_STORE_PATH", cf.SecretStore),
		SecretKey:      getEnv("SECRET_STORE_KEY", ""),
		StatusListen:   getEnv("STATUS_LISTEN", cf.StatusListen),
		DebugListen:    getEnv("DEBUG_LISTEN", cf.DebugListen),
		MonitorOnStart: parseBoolEnv("MONITOR_ON_START", cf.MonitorOnStart),
	}
	return c, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cf ConfigFile
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", filePath)
	}
	return &cf, nil
}

// SecretReader secret store 的只读视图
type SecretReader interface {
	GetString(key string) (string, bool, error)
}

// FillSecrets 用 secret store 中的值补齐未配置的凭证（已配置的不覆盖）
func (c *Config) FillSecrets(r SecretReader) error {
	fill := func(dst *string, key string) error {
		if *dst != "" {
			return nil
		}
		v, ok, err := r.GetString(key)
		if err != nil {
			return fmt.Errorf("读取 %s 失败: %w", key, err)
		}
		if ok {
			*dst = v
		}
		return nil
	}
	if err := fill(&c.Schwab.APIKey, secretstore.KeyAPIKey); err != nil {
		return err
	}
	if err := fill(&c.Schwab.AppSecret, secretstore.KeyAppSecret); err != nil {
		return err
	}
	return fill(&c.Schwab.AccessToken, secretstore.KeyAccessToken)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Schwab.AccessToken == "" && c.SecretStore == "" {
		return fmt.Errorf("SCHWAB_ACCESS_TOKEN 未配置（也未配置 secret store）")
	}
	if c.Schwab.BaseURL == "" {
		return fmt.Errorf("SCHWAB_BASE_URL 不能为空")
	}
	if c.Schwab.RequestsPerMinute <= 0 {
		return fmt.Errorf("SCHWAB_REQUESTS_PER_MINUTE 必须大于 0")
	}
	if c.Streaming.AuthRetries < 0 {
		return fmt.Errorf("STREAM_AUTH_RETRIES 不能为负数")
	}
	if c.Streaming.MaxReconnects < 0 {
		return fmt.Errorf("STREAM_MAX_RECONNECTS 不能为负数")
	}
	if c.Orders.PollInterval <= 0 {
		return fmt.Errorf("ORDER_POLL_INTERVAL_MS 必须大于 0")
	}
	if c.Quotes.PollInterval <= 0 {
		return fmt.Errorf("QUOTE_POLL_INTERVAL_MS 必须大于 0")
	}
	if len(c.Quotes.Symbols) > MaxQuoteSymbols {
		return fmt.Errorf("最多订阅 %d 个标的，当前 %d 个", MaxQuoteSymbols, len(c.Quotes.Symbols))
	}
	return nil
}

func parseProxy(cf *ConfigFile) *ProxyConfig {
	host := getEnv("PROXY_HOST", cf.Streaming.Proxy.Host)
	port := parseIntEnv("PROXY_PORT", cf.Streaming.Proxy.Port)
	if host == "" || port <= 0 {
		return nil
	}
	return &ProxyConfig{Host: host, Port: port}
}

// parseSymbols 逗号分隔，转大写去重
func parseSymbols(str string) []string {
	if str == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range strings.Split(str, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
