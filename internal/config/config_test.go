package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"texbridge/internal/logger"
	"texbridge/internal/repair"
	"texbridge/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "texbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func load(t *testing.T, path string) *ConfigManager {
	t.Helper()
	cm, err := NewConfigManager(path)
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}
	if err := cm.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cm
}

func TestNewConfigManager(t *testing.T) {
	t.Run("with custom path", func(t *testing.T) {
		customPath := "/tmp/test-texbridge.yaml"
		cm, err := NewConfigManager(customPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if cm.GetConfigPath() != customPath {
			t.Errorf("expected config path %s, got %s", customPath, cm.GetConfigPath())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		cm, err := NewConfigManager("")
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if filepath.Base(cm.GetConfigPath()) != DefaultConfigFileName {
			t.Errorf("expected %s, got %s", DefaultConfigFileName, cm.GetConfigPath())
		}
	})
}

func TestConfigManager_LoadSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "texbridge.yaml")

	t.Run("Load with non-existent file uses defaults", func(t *testing.T) {
		config := load(t, configPath).GetConfig()
		if config.MaxLoopIterations != 1000 {
			t.Errorf("expected default loop cap 1000, got %d", config.MaxLoopIterations)
		}
		if !config.LossComments {
			t.Error("expected loss comments on by default")
		}
		if config.Corpus.Concurrency != DefaultCorpusConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultCorpusConcurrency, config.Corpus.Concurrency)
		}
		if config.Repair.OpenAIModel != repair.DefaultAgentModel {
			t.Errorf("expected model %s, got %s", repair.DefaultAgentModel, config.Repair.OpenAIModel)
		}
	})

	t.Run("Save creates config file", func(t *testing.T) {
		cm, _ := NewConfigManager(configPath)
		cfg := defaultConfig()
		cfg.MaxLoopIterations = 250
		cfg.LossComments = false
		cfg.Features = []string{"tables"}
		cfg.Repair.Enabled = true
		cfg.Repair.Command = "my-fixer --json"
		cm.SetConfig(cfg)

		if err := cm.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		info, err := os.Stat(configPath)
		if err != nil {
			t.Fatalf("config file was not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("Load reads saved config", func(t *testing.T) {
		config := load(t, configPath).GetConfig()
		if config.MaxLoopIterations != 250 {
			t.Errorf("expected 250, got %d", config.MaxLoopIterations)
		}
		if config.LossComments {
			t.Error("expected loss comments off")
		}
		if len(config.Features) != 1 || config.Features[0] != "tables" {
			t.Errorf("expected [tables], got %v", config.Features)
		}
		if config.Repair.Command != "my-fixer --json" {
			t.Errorf("expected repair command, got %q", config.Repair.Command)
		}
	})

	t.Run("Load with invalid YAML uses defaults", func(t *testing.T) {
		path := writeConfig(t, "max_loop_iterations: [unclosed\n")
		config := load(t, path).GetConfig()
		if config.MaxLoopIterations != 1000 {
			t.Errorf("expected default after invalid YAML, got %d", config.MaxLoopIterations)
		}
	})
}

func TestConfigManager_ZeroValuesGetDefaults(t *testing.T) {
	path := writeConfig(t, "max_macro_depth: 0\ncorpus:\n  concurrency: 0\n  database: \"\"\nrepair:\n  timeout_seconds: -3\n")
	cm := load(t, path)
	config := cm.GetConfig()
	if config.MaxMacroDepth <= 0 {
		t.Errorf("expected default macro depth, got %d", config.MaxMacroDepth)
	}
	if config.Corpus.Database != DefaultCorpusDatabase {
		t.Errorf("expected %s, got %s", DefaultCorpusDatabase, config.Corpus.Database)
	}
	if cm.RepairTimeout() != DefaultRepairTimeoutSeconds*time.Second {
		t.Errorf("expected default timeout, got %v", cm.RepairTimeout())
	}
}

func TestConfigManager_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "max_loop_iterations: 200\nlog:\n  level: warn\n")
	t.Setenv("TEXBRIDGE_MAX_LOOP_ITERATIONS", "50")
	t.Setenv("TEXBRIDGE_REPAIR_COMMAND", "cat")
	t.Setenv("TEXBRIDGE_CORPUS_CONCURRENCY", "9")

	config := load(t, path).GetConfig()
	if config.MaxLoopIterations != 50 {
		t.Errorf("expected env to win with 50, got %d", config.MaxLoopIterations)
	}
	if config.Repair.Command != "cat" {
		t.Errorf("expected repair command from env, got %q", config.Repair.Command)
	}
	if config.Corpus.Concurrency != 9 {
		t.Errorf("expected concurrency 9, got %d", config.Corpus.Concurrency)
	}
	if config.Log.Level != "warn" {
		t.Errorf("expected file value warn, got %s", config.Log.Level)
	}
}

func TestConfigManager_GetAPIKey(t *testing.T) {
	cm, _ := NewConfigManager(filepath.Join(t.TempDir(), "texbridge.yaml"))

	t.Setenv(EnvOpenAIAPIKey, "env-key")
	if got := cm.GetAPIKey(); got != "env-key" {
		t.Errorf("expected env-key, got %s", got)
	}

	cm.GetConfig().Repair.OpenAIAPIKey = "config-key"
	if got := cm.GetAPIKey(); got != "config-key" {
		t.Errorf("expected config value to take precedence, got %s", got)
	}
}

func TestConfigManager_GetBaseURL(t *testing.T) {
	cm, _ := NewConfigManager(filepath.Join(t.TempDir(), "texbridge.yaml"))
	t.Setenv(EnvOpenAIBaseURL, "")
	if got := cm.GetBaseURL(); got != DefaultBaseURL {
		t.Errorf("expected default base URL, got %s", got)
	}

	t.Setenv(EnvOpenAIBaseURL, "http://localhost:8080/v1")
	if got := cm.GetBaseURL(); got != "http://localhost:8080/v1" {
		t.Errorf("expected env base URL, got %s", got)
	}
}

func TestConfigManager_ToOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cm := load(t, filepath.Join(t.TempDir(), "none.yaml"))
		opts, err := cm.ToOptions()
		if err != nil {
			t.Fatalf("ToOptions failed: %v", err)
		}
		if opts.Repairer != nil {
			t.Error("expected repair to be disabled")
		}
		if !opts.Features.Tables || !opts.Features.Graphics || !opts.Features.References {
			t.Errorf("expected all features, got %+v", opts.Features)
		}
		if !opts.LossComments {
			t.Error("expected loss comments")
		}
		if opts.RepairTimeout != time.Minute {
			t.Errorf("expected 1m timeout, got %v", opts.RepairTimeout)
		}
		if opts.MaxLoopIterations != 1000 {
			t.Errorf("expected 1000, got %d", opts.MaxLoopIterations)
		}
	})

	t.Run("process repair", func(t *testing.T) {
		cm := load(t, writeConfig(t, "features: [tables]\nrepair:\n  enabled: true\n  command: ./fix.sh\n  timeout_seconds: 5\n  allow_no_gain: true\n"))
		opts, err := cm.ToOptions()
		if err != nil {
			t.Fatalf("ToOptions failed: %v", err)
		}
		p, ok := opts.Repairer.(*repair.ProcessRepairer)
		if !ok {
			t.Fatalf("expected process repairer, got %T", opts.Repairer)
		}
		if p.Command != "./fix.sh" {
			t.Errorf("unexpected command %q", p.Command)
		}
		if opts.RepairTimeout != 5*time.Second || !opts.AllowNoGain {
			t.Errorf("unexpected repair options %v %v", opts.RepairTimeout, opts.AllowNoGain)
		}
		if !opts.Features.Tables || opts.Features.Graphics {
			t.Errorf("expected tables only, got %+v", opts.Features)
		}
	})

	t.Run("agent repair", func(t *testing.T) {
		cm := load(t, writeConfig(t, "repair:\n  enabled: true\n  use_agent: true\n  openai_model: gpt-4o-mini\n"))
		opts, err := cm.ToOptions()
		if err != nil {
			t.Fatalf("ToOptions failed: %v", err)
		}
		if repair.Name(opts.Repairer) != "agent" {
			t.Errorf("expected agent repairer, got %s", repair.Name(opts.Repairer))
		}
	})

	t.Run("enabled without command", func(t *testing.T) {
		cm := load(t, writeConfig(t, "repair:\n  enabled: true\n"))
		_, err := cm.ToOptions()
		appErr, ok := err.(*types.AppError)
		if !ok || appErr.Code != types.ErrConfig {
			t.Errorf("expected config error, got %v", err)
		}
	})

	t.Run("unknown feature", func(t *testing.T) {
		cm := load(t, writeConfig(t, "features: [tables, sparkles]\n"))
		if _, err := cm.ToOptions(); err == nil {
			t.Error("expected error for unknown feature")
		}
	})
}

func TestConfigManager_LoggerConfig(t *testing.T) {
	cm := load(t, writeConfig(t, "log:\n  level: debug\n  file: /tmp/texbridge-test.log\n"))
	lc, err := cm.LoggerConfig()
	if err != nil {
		t.Fatalf("LoggerConfig failed: %v", err)
	}
	if lc.Level != logger.LevelDebug {
		t.Errorf("expected debug, got %v", lc.Level)
	}
	if lc.LogFilePath != "/tmp/texbridge-test.log" || !lc.EnableConsole {
		t.Errorf("unexpected logger config %+v", lc)
	}

	cm.GetConfig().Log.Level = "loud"
	if _, err := cm.LoggerConfig(); err == nil {
		t.Error("expected error for unknown level")
	}
}
