package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// DefaultTokenTTL 是访问令牌的默认有效期。
//
// 令牌无状态、不可撤销，有效期越长重放窗口越大，因此默认取一天。
const DefaultTokenTTL = 24 * time.Hour

// MinSecretLength 是 JWT 签名密钥的最小字节数（HS256 推荐 >= 256 bit）。
const MinSecretLength = 32

// placeholderSecrets 是历史上出现过的示例密钥，任何环境下都拒绝使用。
var placeholderSecrets = map[string]struct{}{
	"dev_secret_change_me": {},
	"changeme":             {},
	"change_me":            {},
	"secret":               {},
	"week22task":           {},
	"your-secret-key":      {},
}

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env             string        `json:"env"`              // 运行环境: local / prod
	LogLevel        string        `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr        string        `json:"http_addr"`        // API 服务监听地址
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // 优雅关闭超时（如 "5s"）
	// TrustedProxies 是允许设置 X-Forwarded-For 的反向代理（IP 或 CIDR）。
	// 为空时不信任任何代理，客户端 IP 取自 TCP 连接。
	TrustedProxies []string `json:"trusted_proxies"`
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Driver string `json:"driver"` // mysql / sqlite
	DSN    string `json:"dsn"`    // 数据库连接字符串
}

// RedisConfig Redis 配置。Addr 为空表示不启用 Redis（限流随之关闭）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret      string        `json:"jwt_secret"`       // JWT 签名密钥（必填，无默认值）
	TokenTTL       time.Duration `json:"token_ttl"`        // 令牌有效期（如 "24h"）
	LoginRateLimit float64       `json:"login_rate_limit"` // 登录/注册限流速率（token/s），0 表示关闭
	LoginRateBurst float64       `json:"login_rate_burst"` // 登录/注册限流桶容量
}

// Load 从 JSON 文件加载配置并校验。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值；
// 随后应用环境变量覆盖，最后调用 Validate。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 读取、解析或校验失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = getDefaultConfig()
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applyDefaults(cfg)
	}

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验启动所必需的配置。
//
// JWT 密钥必须显式提供：为空、过短或为已知示例值时直接失败，
// 不会静默回退到默认密钥。
func (c *Config) Validate() error {
	secret := strings.TrimSpace(c.Security.JWTSecret)
	if secret == "" {
		return errors.New("security.jwt_secret (JWT_SECRET) is required")
	}
	if _, ok := placeholderSecrets[strings.ToLower(secret)]; ok {
		return errors.New("security.jwt_secret is a placeholder value; set a real secret")
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("security.jwt_secret must be at least %d bytes", MinSecretLength)
	}
	if c.Security.TokenTTL <= 0 {
		return errors.New("security.token_ttl must be positive")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	return nil
}

// getDefaultConfig 返回默认配置。JWTSecret 故意留空。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:             "local",
			LogLevel:        "info",
			HTTPAddr:        ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "mysql",
			DSN:    "root:password@tcp(localhost:3306)/taskhub?charset=utf8mb4&parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost: "",
			SMTPPort: 587,
		},
		Security: SecurityConfig{
			TokenTTL:       DefaultTokenTTL,
			LoginRateLimit: 0.2,
			LoginRateBurst: 10,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.ShutdownTimeout == 0 {
		cfg.App.ShutdownTimeout = defaults.App.ShutdownTimeout
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == defaults.Database.Driver {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = defaults.Security.TokenTTL
	}
	if cfg.Security.LoginRateLimit == 0 {
		cfg.Security.LoginRateLimit = defaults.Security.LoginRateLimit
	}
	if cfg.Security.LoginRateBurst == 0 {
		cfg.Security.LoginRateBurst = defaults.Security.LoginRateBurst
	}
}

func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.AutomaticEnv()

	_ = v.BindEnv("db_host", "DB_HOST")
	_ = v.BindEnv("db_password", "DB_PASSWORD")
	_ = v.BindEnv("redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("smtp_pass", "SMTP_PASS")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")

	if s := os.Getenv("APP_ENV"); s != "" {
		cfg.App.Env = s
	}
	if s := os.Getenv("APP_LOG_LEVEL"); s != "" {
		cfg.App.LogLevel = s
	}
	if s := os.Getenv("APP_HTTP_ADDR"); s != "" {
		cfg.App.HTTPAddr = s
	}
	if s := os.Getenv("TRUSTED_PROXIES"); s != "" {
		cfg.App.TrustedProxies = splitList(s)
	}
	if s := os.Getenv("APP_SHUTDOWN_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.App.ShutdownTimeout = d
		}
	}

	if s := v.GetString("jwt_secret"); s != "" {
		cfg.Security.JWTSecret = s
	}
	if s := os.Getenv("TOKEN_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.Security.TokenTTL = d
		}
	}
	if s := os.Getenv("LOGIN_RATE_LIMIT"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			cfg.Security.LoginRateLimit = f
		}
	}
	if s := os.Getenv("LOGIN_RATE_BURST"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			cfg.Security.LoginRateBurst = f
		}
	}

	if s := os.Getenv("DB_DRIVER"); s != "" {
		cfg.Database.Driver = s
	}
	if s := os.Getenv("DB_DSN"); s != "" {
		cfg.Database.DSN = s
	} else if cfg.Database.Driver == "mysql" &&
		(hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || v.GetString("db_host") != "" || v.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if s := v.GetString("db_host"); s != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = s + ":" + port
		} else if s := os.Getenv("DB_PORT"); s != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + s
		}
		if s := os.Getenv("DB_USER"); s != "" {
			parsed.User = s
		}
		if s := v.GetString("db_password"); s != "" {
			parsed.Passwd = s
		}
		if s := os.Getenv("DB_NAME"); s != "" {
			parsed.DBName = s
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if s := v.GetString("redis_addr"); s != "" {
		cfg.Redis.Addr = s
	}
	if s := v.GetString("redis_password"); s != "" {
		cfg.Redis.Password = s
	}

	if s := os.Getenv("SMTP_HOST"); s != "" {
		cfg.Email.SMTPHost = s
	}
	if s := os.Getenv("SMTP_PORT"); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if s := os.Getenv("SMTP_USER"); s != "" {
		cfg.Email.SMTPUser = s
	}
	if s := v.GetString("smtp_pass"); s != "" {
		cfg.Email.SMTPPass = s
	}
	if s := os.Getenv("SMTP_FROM"); s != "" {
		cfg.Email.FromEmail = s
	}
}

// splitList 解析逗号分隔的列表，忽略空项。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if s := os.Getenv(envKey); s != "" {
		return s
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func defaultMySQLConfig() *mysql.Config {
	c := mysql.NewConfig()
	c.User = "root"
	c.Net = "tcp"
	c.Addr = "localhost:3306"
	c.DBName = "taskhub"
	c.ParseTime = true
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c
}

func parseMySQLDSN(dsn string) *mysql.Config {
	if dsn == "" {
		return defaultMySQLConfig()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return defaultMySQLConfig()
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持时间 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		ShutdownTimeout string `json:"shutdown_timeout"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ShutdownTimeout != "" {
		d, err := time.ParseDuration(aux.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown_timeout format: %w", err)
		}
		a.ShutdownTimeout = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		ShutdownTimeout string `json:"shutdown_timeout"`
		*Alias
	}{
		ShutdownTimeout: a.ShutdownTimeout.String(),
		Alias:           (*Alias)(&a),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 token_ttl 字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TokenTTL != "" {
		d, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		s.TokenTTL = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化。密钥不会被写出。
func (s SecurityConfig) MarshalJSON() ([]byte, error) {
	type Alias SecurityConfig
	return json.Marshal(&struct {
		TokenTTL  string `json:"token_ttl"`
		JWTSecret string `json:"jwt_secret,omitempty"`
		*Alias
	}{
		TokenTTL: s.TokenTTL.String(),
		Alias:    (*Alias)(&s),
	})
}
