// Package config carga la configuración de rebind/advd desde YAML con
// overrides por variables de entorno.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda "dev".
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		// debug | info | warn | error
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Check configura el verificador de rotación (rebind).
	Check struct {
		// Timeout por fetch de advertisement, como duración ("30s"). La
		// herramienta original no impone ninguno; acá es explícito.
		Timeout string `yaml:"timeout"`
		// MaxDepth acota la recursión sobre bindings sss anidados.
		MaxDepth int `yaml:"max_depth"`
		// TokensDir: si no está vacío, se leen tokens exportados de este
		// directorio en vez de invocar cryptsetup.
		TokensDir string `yaml:"tokens_dir"`
	} `yaml:"check"`

	// Server configura el advertisement server (advd).
	Server struct {
		Addr string `yaml:"addr"`
		// KeysDir es el directorio con las claves JWK del server.
		KeysDir string `yaml:"keys_dir"`
		// AdvCacheTTL: cuánto vive el advertisement firmado en cache antes
		// de re-firmarse ("5m"). Cachear del lado del server es barato y
		// seguro; el checker nunca cachea.
		AdvCacheTTL string `yaml:"adv_cache_ttl"`
	} `yaml:"server"`
}

func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Check.Timeout == "" {
		c.Check.Timeout = "30s"
	}
	if c.Check.MaxDepth == 0 {
		c.Check.MaxDepth = 16
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9090"
	}
	if c.Server.KeysDir == "" {
		c.Server.KeysDir = "/var/lib/advd/keys"
	}
	if c.Server.AdvCacheTTL == "" {
		c.Server.AdvCacheTTL = "5m"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// CheckTimeout retorna check.timeout parseado. Validate ya garantizó que
// parsea.
func (c *Config) CheckTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Check.Timeout)
	return d
}

// AdvCacheTTL retorna server.adv_cache_ttl parseado.
func (c *Config) AdvCacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Server.AdvCacheTTL)
	return d
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("CHECK_TIMEOUT"); ok {
		c.Check.Timeout = v
	}
	if v, ok := getEnvInt("CHECK_MAX_DEPTH"); ok {
		c.Check.MaxDepth = v
	}
	if v, ok := getEnvStr("CHECK_TOKENS_DIR"); ok {
		c.Check.TokensDir = v
	}
	if v, ok := getEnvStr("ADVD_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("ADVD_KEYS_DIR"); ok {
		c.Server.KeysDir = v
	}
	if v, ok := getEnvStr("ADVD_ADV_CACHE_TTL"); ok {
		c.Server.AdvCacheTTL = v
	}
}

// Validate chequea valores críticos. Se llama siempre desde Load.
func (c *Config) Validate() error {
	d, err := time.ParseDuration(c.Check.Timeout)
	if err != nil {
		return fmt.Errorf("config: check.timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("config: check.timeout must be positive, got %s", d)
	}
	if c.Check.MaxDepth < 1 {
		return fmt.Errorf("config: check.max_depth must be >= 1, got %d", c.Check.MaxDepth)
	}
	ttl, err := time.ParseDuration(c.Server.AdvCacheTTL)
	if err != nil {
		return fmt.Errorf("config: server.adv_cache_ttl: %w", err)
	}
	if ttl < 0 {
		return fmt.Errorf("config: server.adv_cache_ttl must not be negative")
	}
	switch strings.ToLower(c.App.Env) {
	case "dev", "prod":
	default:
		return fmt.Errorf("config: app.env must be dev or prod, got %q", c.App.Env)
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
