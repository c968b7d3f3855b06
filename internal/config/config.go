package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Render   RenderConfig   `mapstructure:"render"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	CanonicalHost  string `mapstructure:"canonical_host"`
	StaticDir      string `mapstructure:"static_dir"`
	LogFormat      string `mapstructure:"log_format"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
	MetricsSecret  string `mapstructure:"metrics_secret"`
	// RenderPerMinute 为单个用户每分钟可触发的渲染次数，0 表示不限制。
	RenderPerMinute int `mapstructure:"render_per_minute"`
}

// Origins 将逗号分隔的 AllowedOrigins 拆分为列表。
func (a APIConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(a.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	IconBucket       string `mapstructure:"icon_bucket"`
	ThumbnailBucket  string `mapstructure:"thumbnail_bucket"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 描述身份提供方签发令牌的校验方式。
// 优先级：PublicKeyPEM（RS256），JWTSecret（HS256），JWKSURL（提供方公开的 JWKS）。
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	PublicKeyPEM string `mapstructure:"public_key_pem"`
	JWKSURL      string `mapstructure:"jwks_url"`
	Issuer       string `mapstructure:"issuer"`
	Audience     string `mapstructure:"audience"`
}

// RenderConfig contains render pool and engine settings.
type RenderConfig struct {
	Workers        int           `mapstructure:"workers"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
	RendererBinary string        `mapstructure:"renderer_binary"`
	HTMLBackend    string        `mapstructure:"html_backend"`
	BrowserBinary  string        `mapstructure:"browser_binary"`
	LatexBinary    string        `mapstructure:"latex_binary"`
	PdftoppmBinary string        `mapstructure:"pdftoppm_binary"`
	WorkDir        string        `mapstructure:"work_dir"`
}

// LimitsConfig 汇总业务配额。
type LimitsConfig struct {
	MaxResumes      int `mapstructure:"max_resumes"`
	ListMax         int `mapstructure:"list_max"`
	CopyConcurrency int `mapstructure:"copy_concurrency"`
}

// ClamdConfig 为空地址时关闭图标病毒扫描。
type ClamdConfig struct {
	Address string `mapstructure:"address"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration from environment variables (with optional defaults).
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadRender 只读取渲染子进程需要的设置，不校验数据库、存储与鉴权配置。
func LoadRender() (RenderConfig, string, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return RenderConfig{}, "", fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return RenderConfig{}, "", fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validateRender(cfg.Render); err != nil {
		return RenderConfig{}, "", err
	}
	return cfg.Render, cfg.API.LogFormat, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.static_dir", "./web/dist")
	v.SetDefault("api.log_format", "text")
	v.SetDefault("api.render_per_minute", 30)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "resumeforge")
	v.SetDefault("database.user", "resumeforge")
	v.SetDefault("database.password", "resumeforge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_lookup", "path")
	v.SetDefault("minio.icon_bucket", "resume-icons")
	v.SetDefault("minio.thumbnail_bucket", "resume-thumbnails")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("render.workers", 3)
	v.SetDefault("render.job_timeout", 60*time.Second)
	v.SetDefault("render.renderer_binary", "resumeforge-renderer")
	v.SetDefault("render.html_backend", "rod")
	v.SetDefault("render.latex_binary", "xelatex")
	v.SetDefault("render.pdftoppm_binary", "pdftoppm")
	v.SetDefault("limits.max_resumes", 5)
	v.SetDefault("limits.list_max", 50)
	v.SetDefault("limits.copy_concurrency", 10)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                 "API_PORT",
		"api.canonical_host":       "API_CANONICAL_HOST",
		"api.static_dir":           "API_STATIC_DIR",
		"api.log_format":           "LOG_FORMAT",
		"api.allowed_origins":      "API_ALLOWED_ORIGINS",
		"api.metrics_secret":       "METRICS_SECRET",
		"api.render_per_minute":    "API_RENDER_PER_MINUTE",
		"database.host":            "DATABASE_HOST",
		"database.port":            "DATABASE_PORT",
		"database.name":            "POSTGRES_DB",
		"database.user":            "POSTGRES_USER",
		"database.password":        "POSTGRES_PASSWORD",
		"database.sslmode":         "DATABASE_SSLMODE",
		"redis.host":               "REDIS_HOST",
		"redis.port":               "REDIS_PORT",
		"minio.endpoint":           "MINIO_ENDPOINT",
		"minio.public_endpoint":    "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":      "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":  "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":            "MINIO_USE_SSL",
		"minio.region":             "MINIO_REGION",
		"minio.bucket_lookup":      "MINIO_BUCKET_LOOKUP",
		"minio.icon_bucket":        "MINIO_ICON_BUCKET",
		"minio.thumbnail_bucket":   "MINIO_THUMBNAIL_BUCKET",
		"minio.auto_create_bucket": "MINIO_AUTO_CREATE_BUCKET",
		"auth.jwt_secret":          "AUTH_JWT_SECRET",
		"auth.public_key_pem":      "AUTH_PUBLIC_KEY_PEM",
		"auth.issuer":              "AUTH_ISSUER",
		"auth.audience":            "AUTH_AUDIENCE",
		"auth.jwks_url":            "AUTH_JWKS_URL",
		"render.workers":           "RENDER_WORKERS",
		"render.job_timeout":       "RENDER_JOB_TIMEOUT",
		"render.renderer_binary":   "RENDER_RENDERER_BINARY",
		"render.html_backend":      "RENDER_HTML_BACKEND",
		"render.browser_binary":    "RENDER_BROWSER_BINARY",
		"render.latex_binary":      "RENDER_LATEX_BINARY",
		"render.pdftoppm_binary":   "RENDER_PDFTOPPM_BINARY",
		"render.work_dir":          "RENDER_WORK_DIR",
		"limits.max_resumes":       "LIMITS_MAX_RESUMES",
		"limits.list_max":          "LIMITS_LIST_MAX",
		"limits.copy_concurrency":  "LIMITS_COPY_CONCURRENCY",
		"clamd.address":            "CLAMD_ADDRESS",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.IconBucket == "" || cfg.MinIO.ThumbnailBucket == "" {
		return errors.New("minio icon and thumbnail buckets are required")
	}
	if cfg.Auth.JWTSecret == "" && cfg.Auth.PublicKeyPEM == "" && cfg.Auth.JWKSURL == "" {
		return errors.New("one of auth jwt secret, public key or jwks url is required")
	}
	if err := validateRender(cfg.Render); err != nil {
		return err
	}
	if cfg.Limits.MaxResumes <= 0 {
		return errors.New("max resumes must be positive")
	}
	if cfg.Limits.ListMax <= 0 {
		return errors.New("list max must be positive")
	}
	return nil
}

func validateRender(r RenderConfig) error {
	if r.Workers <= 0 {
		return errors.New("render workers must be positive")
	}
	if r.JobTimeout <= 0 {
		return errors.New("render job timeout must be positive")
	}
	switch r.HTMLBackend {
	case "rod", "chromedp":
	default:
		return fmt.Errorf("invalid render html backend %q", r.HTMLBackend)
	}
	return nil
}
