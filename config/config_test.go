package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/charges?parseTime=true")
	setEnv(t, "APP_SERVICE_NAME", "charges-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_MAX_IDLE_CONNS", "8")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "PROVIDER_BASE_URL", "https://provider.test")
	setEnv(t, "PROVIDER_API_KEY", "sk_test")
	setEnv(t, "PROVIDER_HTTP_TIMEOUT_SECONDS", "7")
	setEnv(t, "CHARGES_PROVIDER_TIMEOUT_SECONDS", "9")
	setEnv(t, "CHARGES_RECONCILE_STALE_AFTER_MINUTES", "13")
	setEnv(t, "CHARGES_JOB_BATCH_SIZE", "99")
	setEnv(t, "CHARGES_RECONCILE_INTERVAL_MINUTES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "charges-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" {
		t.Fatalf("unexpected http port: %s", cfg.HTTP.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.MaxIdleConns != 8 {
		t.Fatalf("unexpected mysql pool config: %+v", cfg.MySQL)
	}
	if cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql lifetime: %v", cfg.MySQL.ConnMaxLifetime)
	}
	if cfg.Provider.BaseURL != "https://provider.test" || cfg.Provider.APIKey != "sk_test" {
		t.Fatalf("unexpected provider config: %+v", cfg.Provider)
	}
	if cfg.Provider.HTTPTimeout != 7*time.Second {
		t.Fatalf("unexpected provider http timeout: %v", cfg.Provider.HTTPTimeout)
	}
	if cfg.Charges.ProviderTimeout != 9*time.Second {
		t.Fatalf("unexpected provider timeout: %v", cfg.Charges.ProviderTimeout)
	}
	if cfg.Charges.ReconcileStaleAfter != 13*time.Minute {
		t.Fatalf("unexpected reconcile stale after: %v", cfg.Charges.ReconcileStaleAfter)
	}
	if cfg.Charges.JobBatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Charges.JobBatchSize)
	}
	if cfg.Jobs.ReconcileInterval != 3*time.Minute {
		t.Fatalf("unexpected reconcile interval: %v", cfg.Jobs.ReconcileInterval)
	}
}
