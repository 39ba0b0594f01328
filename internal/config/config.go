// Package config provides configuration management for texbridge.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"texbridge/internal/convert"
	"texbridge/internal/eval"
	"texbridge/internal/logger"
	"texbridge/internal/macro"
	"texbridge/internal/pipeline"
	"texbridge/internal/repair"
	"texbridge/internal/types"
)

const (
	// DefaultConfigName is the config file name without extension
	DefaultConfigName = "texbridge"
	// DefaultConfigFileName is the file Save writes when no path was given
	DefaultConfigFileName = DefaultConfigName + ".yaml"
	// EnvPrefix prefixes every environment override, e.g. TEXBRIDGE_REPAIR_COMMAND
	EnvPrefix = "TEXBRIDGE"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultRepairTimeoutSeconds bounds one repair attempt
	DefaultRepairTimeoutSeconds = 60
	// DefaultLogLevel keeps CLI output to warnings and errors
	DefaultLogLevel = "warn"
	// DefaultCorpusDatabase is the default SQLite file of the corpus index
	DefaultCorpusDatabase = "texbridge-corpus.db"
	// DefaultCorpusConcurrency is the default number of corpus workers
	DefaultCorpusConcurrency = 4
)

// ConfigManager manages application configuration. Values come from the
// config file, then TEXBRIDGE_* environment variables, then defaults.
type ConfigManager struct {
	configPath string
	// searchPaths are used when configPath is empty
	searchPaths []string
	v           *viper.Viper
	config      *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, texbridge.yaml is looked up in the working
// directory and then in ~/.config/texbridge.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	m := &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
	}
	if configPath == "" {
		m.searchPaths = []string{"."}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Warn("failed to get user home directory", logger.Err(err))
		} else {
			m.searchPaths = append(m.searchPaths, filepath.Join(homeDir, ".config", "texbridge"))
		}
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return m, nil
}

// defaultConfig returns a Config with default values
func defaultConfig() *types.Config {
	return &types.Config{
		MaxMacroDepth:     macro.DefaultMaxDepth,
		MaxLoopIterations: eval.DefaultMaxIterations,
		Features:          []string{},
		LossComments:      true,
		Repair: types.RepairConfig{
			TimeoutSecond: DefaultRepairTimeoutSeconds,
			OpenAIModel:   repair.DefaultAgentModel,
			MaxSteps:      repair.DefaultAgentSteps,
		},
		Log: types.LogConfig{Level: DefaultLogLevel},
		Corpus: types.CorpusConfig{
			Database:    DefaultCorpusDatabase,
			Concurrency: DefaultCorpusConcurrency,
		},
	}
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	d := defaultConfig()
	v.SetDefault("max_macro_depth", d.MaxMacroDepth)
	v.SetDefault("max_loop_iterations", d.MaxLoopIterations)
	v.SetDefault("features", d.Features)
	v.SetDefault("loss_comments", d.LossComments)

	v.SetDefault("repair.enabled", false)
	v.SetDefault("repair.command", "")
	v.SetDefault("repair.use_agent", false)
	v.SetDefault("repair.timeout_seconds", d.Repair.TimeoutSecond)
	v.SetDefault("repair.allow_no_gain", false)
	v.SetDefault("repair.openai_api_key", "")
	v.SetDefault("repair.openai_base_url", "")
	v.SetDefault("repair.openai_model", d.Repair.OpenAIModel)
	v.SetDefault("repair.max_steps", d.Repair.MaxSteps)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")

	v.SetDefault("corpus.database", d.Corpus.Database)
	v.SetDefault("corpus.concurrency", d.Corpus.Concurrency)
}

// newViper returns a viper instance with defaults and environment binding.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads configuration. A missing file is not an error; an unreadable
// or malformed one falls back to defaults and environment values.
func (m *ConfigManager) Load() error {
	v := newViper()
	v.SetConfigType("yaml")
	if m.configPath != "" {
		v.SetConfigFile(m.configPath)
	} else {
		v.SetConfigName(DefaultConfigName)
		for _, p := range m.searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
			logger.Debug("config file not found, using defaults", logger.String("path", m.configPath))
		default:
			logger.Warn("invalid config file, using defaults", logger.String("path", m.configPath), logger.Err(err))
			// Drop whatever was partially read.
			v = newViper()
		}
	} else {
		logger.Info("configuration loaded", logger.String("path", v.ConfigFileUsed()))
	}

	cfg := &types.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("failed to decode configuration", err)
		return types.NewAppError(types.ErrConfig, "failed to decode configuration", err)
	}
	applyDefaults(cfg)

	m.v = v
	m.config = cfg
	return nil
}

// applyDefaults fills zero values the way Load always has.
func applyDefaults(cfg *types.Config) {
	d := defaultConfig()
	if cfg.MaxMacroDepth <= 0 {
		cfg.MaxMacroDepth = d.MaxMacroDepth
	}
	if cfg.MaxLoopIterations <= 0 {
		cfg.MaxLoopIterations = d.MaxLoopIterations
	}
	if cfg.Features == nil {
		cfg.Features = d.Features
	}
	if cfg.Repair.TimeoutSecond <= 0 {
		cfg.Repair.TimeoutSecond = d.Repair.TimeoutSecond
	}
	if cfg.Repair.OpenAIModel == "" {
		cfg.Repair.OpenAIModel = d.Repair.OpenAIModel
	}
	if cfg.Repair.MaxSteps <= 0 {
		cfg.Repair.MaxSteps = d.Repair.MaxSteps
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Corpus.Database == "" {
		cfg.Corpus.Database = d.Corpus.Database
	}
	if cfg.Corpus.Concurrency <= 0 {
		cfg.Corpus.Concurrency = d.Corpus.Concurrency
	}
}

// Save writes the current configuration as YAML.
func (m *ConfigManager) Save() error {
	path := m.GetConfigPath()
	logger.Debug("saving configuration", logger.String("path", path))

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := yaml.Marshal(m.GetConfig())
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	// 配置里可能有 API key
	if err := os.WriteFile(path, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", path))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", path))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the file Save writes: the explicit path, else the
// file Load read, else texbridge.yaml under the last search path.
func (m *ConfigManager) GetConfigPath() string {
	if m.configPath != "" {
		return m.configPath
	}
	if m.v != nil && m.v.ConfigFileUsed() != "" {
		return m.v.ConfigFileUsed()
	}
	if n := len(m.searchPaths); n > 0 {
		return filepath.Join(m.searchPaths[n-1], DefaultConfigFileName)
	}
	return DefaultConfigFileName
}

// GetAPIKey returns the OpenAI API key.
// It first checks the config value, then falls back to the environment variable.
func (m *ConfigManager) GetAPIKey() string {
	if key := m.GetConfig().Repair.OpenAIAPIKey; key != "" {
		return key
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

// GetBaseURL returns the OpenAI API base URL.
// It first checks the config value, then falls back to the environment variable.
func (m *ConfigManager) GetBaseURL() string {
	if u := m.GetConfig().Repair.OpenAIBaseURL; u != "" {
		return u
	}
	if u := os.Getenv(EnvOpenAIBaseURL); u != "" {
		return u
	}
	return DefaultBaseURL
}

// RepairTimeout returns the per-attempt repair timeout.
func (m *ConfigManager) RepairTimeout() time.Duration {
	secs := m.GetConfig().Repair.TimeoutSecond
	if secs <= 0 {
		secs = DefaultRepairTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// Repairer builds the configured repair strategy. It returns nil when
// repair is disabled.
func (m *ConfigManager) Repairer() (repair.Repairer, error) {
	rc := m.GetConfig().Repair
	if !rc.Enabled {
		return nil, nil
	}
	if rc.UseAgent {
		return repair.NewAgentRepairer(repair.AgentConfig{
			APIKey:      m.GetAPIKey(),
			BaseURL:     m.GetBaseURL(),
			Model:       rc.OpenAIModel,
			MaxSteps:    rc.MaxSteps,
			AllowNoGain: rc.AllowNoGain,
		}), nil
	}
	if strings.TrimSpace(rc.Command) == "" {
		return nil, types.NewAppError(types.ErrConfig, "repair is enabled but no repair command is configured", nil)
	}
	return repair.NewProcessRepairer(rc.Command), nil
}

// ToOptions converts the configuration into pipeline options.
func (m *ConfigManager) ToOptions() (pipeline.Options, error) {
	cfg := m.GetConfig()
	features, err := convert.ParseFeatures(cfg.Features)
	if err != nil {
		return pipeline.Options{}, types.NewAppError(types.ErrConfig, "invalid features", err)
	}
	r, err := m.Repairer()
	if err != nil {
		return pipeline.Options{}, err
	}

	opts := pipeline.DefaultOptions()
	opts.MaxMacroDepth = cfg.MaxMacroDepth
	opts.MaxLoopIterations = cfg.MaxLoopIterations
	opts.Features = features
	opts.LossComments = cfg.LossComments
	opts.AllowNoGain = cfg.Repair.AllowNoGain
	opts.RepairTimeout = m.RepairTimeout()
	opts.Repairer = r
	return opts, nil
}

// LoggerConfig returns the logger settings.
func (m *ConfigManager) LoggerConfig() (*logger.Config, error) {
	cfg := m.GetConfig().Log
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "invalid log level", err)
	}
	lc := logger.DefaultConfig()
	lc.Level = level
	lc.LogFilePath = cfg.File
	lc.EnableConsole = true
	return lc, nil
}
