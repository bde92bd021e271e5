package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func reset() {
	CloseAll()
	logsDir = ""
	cfg = Config{}
}

func TestInitialize_DebugModeWritesFiles(t *testing.T) {
	defer reset()
	ws := t.TempDir()

	err := Initialize(ws, Config{DebugMode: true, Level: "debug"})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Get(CategoryFetch).Info("downloading %s", "test.csv.bz2")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(ws, ".caselake", "logs", date+"_fetch.log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("expected fetch log file: %v", err)
	}
	if !strings.Contains(string(data), "downloading test.csv.bz2") {
		t.Errorf("log file missing message, got: %s", data)
	}
}

func TestInitialize_ProductionModeIsNoop(t *testing.T) {
	defer reset()
	ws := t.TempDir()

	if err := Initialize(ws, Config{DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Get(CategoryBronze).Info("should not be written")

	if _, err := os.Stat(filepath.Join(ws, ".caselake", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist in production mode")
	}
}

func TestCategoryToggles(t *testing.T) {
	defer reset()
	ws := t.TempDir()

	err := Initialize(ws, Config{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"csv": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryCSV) {
		t.Error("csv category should be disabled")
	}
	if !IsCategoryEnabled(CategoryShard) {
		t.Error("unspecified categories should default to enabled")
	}
}

func TestLevelFiltering(t *testing.T) {
	defer reset()
	ws := t.TempDir()

	if err := Initialize(ws, Config{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	l := Get(CategoryVerify)
	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(ws, ".caselake", "logs", date+"_verify.log"))
	if err != nil {
		t.Fatalf("expected verify log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "info line") || strings.Contains(out, "debug line") {
		t.Errorf("lines below warn should be filtered, got: %s", out)
	}
	if !strings.Contains(out, "warn line") {
		t.Errorf("warn line missing, got: %s", out)
	}
}
