package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GregMSThompson/skiploss-console/internal/models"
)

const (
	DefaultGatewayBaseURL = "https://skiploss.azurewebsites.net"
	DefaultDeployment     = "gpt-4"
	DefaultAPIVersion     = "2024-02-01"
	DefaultVertexModel    = "gemini-1.5-pro"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	ProjectID string `yaml:"projectId"`
	Region    string `yaml:"region"`

	ChatProvider     models.ChatProvider `yaml:"chatProvider"`
	ChatEndpoint     string              `yaml:"chatEndpoint"`
	ChatAPIKey       string              `yaml:"chatApiKey"`
	ChatAPIKeySecret string              `yaml:"chatApiKeySecret"`
	ChatDeployment   string              `yaml:"chatDeployment"`
	ChatAPIVersion   string              `yaml:"chatApiVersion"`
	VertexModel      string              `yaml:"vertexModel"`

	GatewayBaseURL string        `yaml:"gatewayBaseUrl"`
	GatewayTimeout time.Duration `yaml:"gatewayTimeout"`
	ChatTimeout    time.Duration `yaml:"chatTimeout"`
	TurnTimeout    time.Duration `yaml:"turnTimeout"`

	InsightsInterval time.Duration `yaml:"insightsInterval"`

	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	TurnLockTTL   time.Duration `yaml:"turnLockTtl"`

	AuthEnabled    bool     `yaml:"authEnabled"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// New builds the configuration from defaults, an optional YAML file named by
// CONFIGFILE, and the environment, in increasing order of precedence.
func New() (*Config, error) {
	return load(os.LookupEnv, os.ReadFile)
}

func load(lookup func(string) (string, bool), readFile func(string) ([]byte, error)) (*Config, error) {
	cfg := defaults()

	if path, ok := lookup("CONFIGFILE"); ok && path != "" {
		raw, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	env := envReader{lookup: lookup}
	env.str("PORT", &cfg.Port)
	env.str("LOGLEVEL", &cfg.LogLevel)
	env.str("PROJECTID", &cfg.ProjectID)
	env.str("REGION", &cfg.Region)
	if v, ok := lookup("CHATPROVIDER"); ok && v != "" {
		cfg.ChatProvider = models.ChatProvider(v)
	}
	env.str("CHATENDPOINT", &cfg.ChatEndpoint)
	env.str("CHATAPIKEY", &cfg.ChatAPIKey)
	env.str("CHATAPIKEYSECRET", &cfg.ChatAPIKeySecret)
	env.str("CHATDEPLOYMENT", &cfg.ChatDeployment)
	env.str("CHATAPIVERSION", &cfg.ChatAPIVersion)
	env.str("VERTEXMODEL", &cfg.VertexModel)
	env.str("GATEWAYBASEURL", &cfg.GatewayBaseURL)
	env.duration("GATEWAYTIMEOUT", &cfg.GatewayTimeout)
	env.duration("CHATTIMEOUT", &cfg.ChatTimeout)
	env.duration("TURNTIMEOUT", &cfg.TurnTimeout)
	env.duration("INSIGHTSINTERVAL", &cfg.InsightsInterval)
	env.str("REDISADDR", &cfg.RedisAddr)
	env.str("REDISPASSWORD", &cfg.RedisPassword)
	env.duration("TURNLOCKTTL", &cfg.TurnLockTTL)
	env.boolean("AUTHENABLED", &cfg.AuthEnabled)
	env.list("ALLOWEDORIGINS", &cfg.AllowedOrigins)
	if env.err != nil {
		return nil, env.err
	}

	cfg.ChatProvider = getChatProvider(string(cfg.ChatProvider))
	cfg.GatewayBaseURL = strings.TrimRight(cfg.GatewayBaseURL, "/")
	cfg.ChatEndpoint = strings.TrimRight(cfg.ChatEndpoint, "/")
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:             "8080",
		LogLevel:         "info",
		ChatProvider:     models.ChatProviderAzure,
		ChatDeployment:   DefaultDeployment,
		ChatAPIVersion:   DefaultAPIVersion,
		VertexModel:      DefaultVertexModel,
		GatewayBaseURL:   DefaultGatewayBaseURL,
		GatewayTimeout:   30 * time.Second,
		ChatTimeout:      60 * time.Second,
		TurnTimeout:      2 * time.Minute,
		InsightsInterval: 30 * time.Second,
		TurnLockTTL:      3 * time.Minute,
	}
}

// DefaultChatSettings are the settings a new session starts with.
func (c *Config) DefaultChatSettings() models.ChatSettings {
	if c.ChatProvider == models.ChatProviderVertex {
		return models.ChatSettings{Deployment: c.VertexModel}
	}
	return models.ChatSettings{
		Endpoint:   c.ChatEndpoint,
		APIKey:     c.ChatAPIKey,
		Deployment: c.ChatDeployment,
		APIVersion: c.ChatAPIVersion,
	}
}

func getChatProvider(provider string) models.ChatProvider {
	switch strings.ToLower(provider) {
	case "vertex", "gemini":
		return models.ChatProviderVertex
	default: // "azure"
		return models.ChatProviderAzure
	}
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok || v == "" || r.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.err = fmt.Errorf("parse %s: %w", key, err)
		return
	}
	*dst = d
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok || v == "" || r.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.err = fmt.Errorf("parse %s: %w", key, err)
		return
	}
	*dst = b
}

func (r *envReader) list(key string, dst *[]string) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
