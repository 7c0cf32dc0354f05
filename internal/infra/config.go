package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Sources struct {
		TimeoutSec int `yaml:"timeout_sec"`
		OpenERAPI  struct {
			URL string `yaml:"url"`
		} `yaml:"open_er_api"`
		ExchangeRateAPI struct {
			URL string `yaml:"url"`
		} `yaml:"exchangerate_api"`
		Frankfurter struct {
			URL string `yaml:"url"`
		} `yaml:"frankfurter"`
	} `yaml:"sources"`

	Cache struct {
		TTLDays int    `yaml:"ttl_days"`
		DBPath  string `yaml:"db_path"` // empty = user config dir
	} `yaml:"cache"`

	Refresh struct {
		Schedule       string `yaml:"schedule"` // cron spec, e.g. "@every 1h"
		MinIntervalSec int    `yaml:"min_interval_sec"`
	} `yaml:"refresh"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(&cfg)

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Sources
	if c.Sources.TimeoutSec <= 0 {
		return fmt.Errorf("source timeout must be positive")
	}
	for name, url := range map[string]string{
		"open_er_api":      c.Sources.OpenERAPI.URL,
		"exchangerate_api": c.Sources.ExchangeRateAPI.URL,
		"frankfurter":      c.Sources.Frankfurter.URL,
	} {
		if url == "" {
			continue // empty keeps the provider default
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("invalid %s URL: %s", name, url)
		}
	}

	// Cache
	if c.Cache.TTLDays <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	// Refresh
	if c.Refresh.Schedule == "" {
		return fmt.Errorf("refresh schedule is required")
	}
	if c.Refresh.MinIntervalSec <= 0 {
		return fmt.Errorf("refresh min interval must be positive")
	}

	// Server
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("CAMBIO_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if path := os.Getenv("CAMBIO_DB_PATH"); path != "" {
		cfg.Cache.DBPath = path
	}
	if level := os.Getenv("CAMBIO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if url := os.Getenv("CAMBIO_OPEN_ER_API_URL"); url != "" {
		cfg.Sources.OpenERAPI.URL = url
	}
	if url := os.Getenv("CAMBIO_EXCHANGERATE_API_URL"); url != "" {
		cfg.Sources.ExchangeRateAPI.URL = url
	}
	if url := os.Getenv("CAMBIO_FRANKFURTER_URL"); url != "" {
		cfg.Sources.Frankfurter.URL = url
	}
}
