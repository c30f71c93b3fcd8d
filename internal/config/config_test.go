package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("addr = %s", cfg.HTTPAddr)
	}
	if cfg.PlatformFeeRate != 0.05 {
		t.Fatalf("fee rate = %v", cfg.PlatformFeeRate)
	}
	if cfg.AutoCompleteAfter != 48*time.Hour {
		t.Fatalf("auto-complete = %v", cfg.AutoCompleteAfter)
	}
	if cfg.KafkaTopic != "booking-events" {
		t.Fatalf("topic = %s", cfg.KafkaTopic)
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("PLATFORM_FEE_RATE", "0.08")
	t.Setenv("BOOKING_AUTOCOMPLETE_AFTER", "24h")
	t.Setenv("ADMIN_IDS", "admin1, admin2")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PlatformFeeRate != 0.08 {
		t.Fatalf("fee rate = %v", cfg.PlatformFeeRate)
	}
	if cfg.AutoCompleteAfter != 24*time.Hour {
		t.Fatalf("auto-complete = %v", cfg.AutoCompleteAfter)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if !cfg.IsAdmin("admin2") || cfg.IsAdmin("shipper1") {
		t.Fatalf("admin allowlist = %v", cfg.AdminIDs)
	}
}

func TestLoadServerConfigRejectsBadValues(t *testing.T) {
	t.Setenv("PLATFORM_FEE_RATE", "1.5")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("fee rate >= 1 should be rejected")
	}
	t.Setenv("PLATFORM_FEE_RATE", "0.05")
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("bad duration should be rejected")
	}
}
