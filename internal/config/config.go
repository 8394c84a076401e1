// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultDotenvPath は起動時に読み込む.envファイルのパス。
const DefaultDotenvPath = ".env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数（および.envファイル）から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// General
	Debug    bool   `env:"DEBUG" envDefault:"false"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"WARNING"`

	// Steam
	SteamAPIKey      string        `env:"STEAM_API_KEY,required,notEmpty"`
	SteamHTTPTimeout time.Duration `env:"STEAM_HTTP_TIMEOUT" envDefault:"10s"`

	// Session
	SecretKey     string `env:"SECRET_KEY,required,notEmpty"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" envDefault:"1209600"` // 14日（秒）

	// Enrichment
	DetailsConcurrency int  `env:"DETAILS_CONCURRENCY" envDefault:"0"` // 0は無制限
	EnrichmentFailAll  bool `env:"ENRICHMENT_FAIL_ALL" envDefault:"false"`

	// Rate Limit
	RateLimitContext int `env:"RATE_LIMIT_CONTEXT" envDefault:"10"` // req/min/session

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// StaticHTTPSRedirect はリバースプロキシ配下でURL生成時のスキームをhttpsに固定する。
	StaticHTTPSRedirect bool `env:"STATIC_HTTPS_REDIRECT" envDefault:"false"`
}

// CookieSecure はセッションCookieにSecure属性を付与すべきかを返す。
// httpsを強制している環境でのみtrueとなる。
func (c *Config) CookieSecure() bool {
	return c.StaticHTTPSRedirect
}

// Load は環境変数とカレントディレクトリの.envファイルからConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadFrom(DefaultDotenvPath)
}

// LoadFrom は環境変数と指定された.envファイルからConfigを読み込む。
// 同じキーが両方にある場合は環境変数を優先する。
// .envファイルが存在しない場合は環境変数のみを使用する。
func LoadFrom(dotenvPath string) (*Config, error) {
	environ := env.ToMap(os.Environ())

	if dotenvPath != "" {
		values, err := godotenv.Read(dotenvPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
		}
		for k, v := range values {
			if _, ok := environ[k]; !ok {
				environ[k] = v
			}
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("invalid environment configuration: %w", err)
	}

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive: %d", cfg.SessionMaxAge)
	}
	if cfg.DetailsConcurrency < 0 {
		return nil, fmt.Errorf("DETAILS_CONCURRENCY must not be negative: %d", cfg.DetailsConcurrency)
	}

	return cfg, nil
}
