package config

import "testing"

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("RELAY_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENCRYPTION_KEY", "")

	cfg := &Config{Env: Development}
	if err := cfg.loadFromEnv(); err != nil {
		t.Fatalf("loadFromEnv: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.StorageMode != StorageLocal {
		t.Errorf("expected default storage mode local, got %s", cfg.StorageMode)
	}
	if cfg.RequireAuth {
		t.Errorf("expected RequireAuth false by default outside production")
	}
	if cfg.FetchTimeout.Seconds() != 30 {
		t.Errorf("expected fetch timeout 30s, got %s", cfg.FetchTimeout)
	}
	if cfg.SQLTimeout.Seconds() != 15 {
		t.Errorf("expected sql timeout 15s, got %s", cfg.SQLTimeout)
	}
	if cfg.ConnectionTestTTL.Seconds() != 10 {
		t.Errorf("expected connection test timeout 10s, got %s", cfg.ConnectionTestTTL)
	}
}

func TestLoadFromEnvRejectsInvalidStorageMode(t *testing.T) {
	t.Setenv("STORAGE_MODE", "ftp")
	cfg := &Config{Env: Development}
	if err := cfg.loadFromEnv(); err == nil {
		t.Fatal("expected error for invalid STORAGE_MODE")
	}
}

func TestLoadFromEnvRequiresBucketForObjectStore(t *testing.T) {
	t.Setenv("STORAGE_MODE", "object_store")
	t.Setenv("S3_BUCKET", "")
	cfg := &Config{Env: Development}
	if err := cfg.loadFromEnv(); err == nil {
		t.Fatal("expected error when object_store mode has no bucket")
	}
}

func TestValidateRequiresAuthAndKeyInProduction(t *testing.T) {
	cfg := &Config{Env: Production, Port: 8080, RequireAuth: false}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing auth/key in production")
	}
}

func TestEnvironmentPredicates(t *testing.T) {
	cfg := &Config{Env: Testing}
	if !cfg.IsTesting() || cfg.IsProduction() || cfg.IsDevelopment() {
		t.Fatal("environment predicate mismatch")
	}
}
