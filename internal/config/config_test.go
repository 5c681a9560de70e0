package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("AMAN_PAYERS", "خليل, مصطفى")
	t.Setenv("AMAN_MAX_UPLOAD_BYTES", "1048576")

	path := writeConfig(t, `
port: "8080"
logLevel: "info"
geminiAPIKey: "file-key"
currency: "JOD"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.GeminiAPIKey != "env-key" {
		t.Fatalf("geminiAPIKey = %q, want env-key", cfg.GeminiAPIKey)
	}
	if len(cfg.Payers) != 2 || cfg.Payers[0] != "خليل" || cfg.Payers[1] != "مصطفى" {
		t.Fatalf("payers = %v", cfg.Payers)
	}
	if cfg.MaxUploadBytes != 1048576 {
		t.Fatalf("maxUploadBytes = %d, want 1048576", cfg.MaxUploadBytes)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
geminiAPIKey: "k"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.GenerationModel == "" || cfg.ImageModel == "" || cfg.VideoModel == "" {
		t.Fatalf("models not defaulted: %+v", cfg)
	}
	if cfg.DriveBackupFileName != "gem_backup.json" {
		t.Fatalf("driveBackupFileName = %q", cfg.DriveBackupFileName)
	}
	if cfg.AIRateLimitPerMinute != 20 {
		t.Fatalf("aiRateLimitPerMinute = %d, want 20", cfg.AIRateLimitPerMinute)
	}
}

func TestValidateConfigRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing geminiAPIKey")
	}
}

func TestValidateConfigDriveNeedsClientEmail(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
geminiAPIKey: "k"
driveKeyPath: "key.pem"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for driveKeyPath without driveClientEmail")
	}
}
