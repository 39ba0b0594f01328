package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFileLogger(t *testing.T, level Level, maxSize int64) (*DefaultLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "texbridge.log")
	l, err := NewDefaultLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: maxSize,
		MaxBackups:  3,
		Level:       level,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return l, logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestLogLevelsAndFields(t *testing.T) {
	l, path := newFileLogger(t, LevelDebug, 1024*1024)

	l.Debug("macro expansion done", String("stage", "macro"))
	l.Info("conversion finished", Int("losses", 3))
	l.Warn("repair rejected", Bool("allow_no_gain", false))
	l.Error("write failed", errors.New("disk full"), Float64("ratio", 0.75))
	l.Close()

	content := readLog(t, path)
	for _, want := range []string{
		"[DEBUG] macro expansion done stage=macro",
		"[INFO] conversion finished losses=3",
		"[WARN] repair rejected allow_no_gain=false",
		`[ERROR] write failed error="disk full" ratio=0.75`,
		"Stack trace:",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q\n%s", want, content)
		}
	}
}

func TestLevelFilteringAndSetLevel(t *testing.T) {
	l, path := newFileLogger(t, LevelWarn, 1024*1024)

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("shown warn")
	l.SetLevel(LevelDebug)
	l.Debug("shown debug")
	l.Close()

	content := readLog(t, path)
	if strings.Contains(content, "hidden") {
		t.Errorf("filtered entries were written:\n%s", content)
	}
	if !strings.Contains(content, "shown warn") || !strings.Contains(content, "shown debug") {
		t.Errorf("expected entries missing:\n%s", content)
	}
}

func TestLogRotation(t *testing.T) {
	l, path := newFileLogger(t, LevelDebug, 100)
	for i := 0; i < 20; i++ {
		l.Info("converting template with a long enough message to rotate")
	}
	l.Close()

	if _, err := os.Stat(path + ".1"); os.IsNotExist(err) {
		t.Error("Backup log file was not created after rotation")
	}
}

func TestConsoleOnlyLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewDefaultLogger(&Config{EnableConsole: true, Console: &buf, Level: LevelInfo})
	if err != nil {
		t.Fatalf("Failed to create console logger: %v", err)
	}
	l.Info("to console", String("direction", "latex-to-typst"))
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if !strings.Contains(buf.String(), "to console direction=latex-to-typst") {
		t.Errorf("console output = %q", buf.String())
	}
}

func TestNoWriterRejected(t *testing.T) {
	if _, err := NewDefaultLogger(&Config{}); err == nil {
		t.Error("expected an error when neither file nor console is configured")
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewDefaultLogger(&Config{EnableConsole: true, Console: &buf, Level: LevelDebug})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	scoped := WithFields(base, String("run_id", "r1"))
	nested := WithFields(scoped, String("stage", "eval"))
	nested.Debug("loop unrolled", Int("iterations", 3))

	if got := buf.String(); !strings.Contains(got, "loop unrolled run_id=r1 stage=eval iterations=3") {
		t.Errorf("scoped entry = %q", got)
	}
	if err := nested.Close(); err != nil {
		t.Errorf("scoped Close() = %v", err)
	}
}

func TestGlobalLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "global.log")
	if err := Init(&Config{LogFilePath: logPath, MaxFileSize: 1 << 20, MaxBackups: 1, Level: LevelDebug}); err != nil {
		t.Fatalf("Failed to initialize global logger: %v", err)
	}

	Debug("global debug")
	Info("global info")
	Warn("global warn")
	Error("global error", errors.New("boom"))
	Close()

	content := readLog(t, logPath)
	for _, want := range []string{"global debug", "global info", "global warn", "global error"} {
		if !strings.Contains(content, want) {
			t.Errorf("global log missing %q", want)
		}
	}
}

func TestNoopLogger(t *testing.T) {
	SetGlobalLogger(nil)

	Debug("test")
	Info("test")
	Warn("test")
	Error("test", nil)

	if GetLogger() == nil {
		t.Error("GetLogger should return noop logger, not nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %s, want %s", tt.level, got, tt.expected)
		}
	}
}

func TestErrFieldWithNil(t *testing.T) {
	field := Err(nil)
	if field.Key != "error" || field.Value != nil {
		t.Errorf("Err(nil) = %+v", field)
	}
}

func TestLogDirectoryCreation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "dir", "test.log")
	l, err := NewDefaultLogger(&Config{LogFilePath: logPath, MaxFileSize: 1 << 20, MaxBackups: 1})
	if err != nil {
		t.Fatalf("Failed to create logger with nested directory: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(filepath.Dir(logPath)); os.IsNotExist(err) {
		t.Error("Nested log directory was not created")
	}
}
