package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 3001, ReadTimeout: 10, WriteTimeout: 10},
		Upstream: UpstreamConfig{Timeout: 5 * time.Second},
		Cache: CacheConfig{
			StationTTL:    24 * time.Hour,
			VehicleTTL:    30 * time.Second,
			SweepInterval: 5 * time.Minute,
		},
		Cities: map[string]CityConfig{
			"bg": {Name: "Beograd", URL: "https://vendor.example", Key: "k", API: "v1"},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoCities(t *testing.T) {
	cfg := validConfig()
	cfg.Cities = nil
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one city") {
		t.Fatalf("expected city error, got %v", err)
	}
}

func TestValidate_V2RequiresKeyIV(t *testing.T) {
	cfg := validConfig()
	cfg.Cities["bg"] = CityConfig{URL: "https://vendor.example", Key: "k", API: "v2"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "v2_key and v2_iv are required") {
		t.Fatalf("expected v2 key error, got %v", err)
	}
}

func TestValidate_V2BadKeyLength(t *testing.T) {
	cfg := validConfig()
	cfg.Cities["bg"] = CityConfig{
		URL:   "https://vendor.example",
		Key:   "k",
		API:   "v2",
		V2Key: base64.StdEncoding.EncodeToString([]byte("short")),
		V2IV:  base64.StdEncoding.EncodeToString(make([]byte, 16)),
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "16, 24, or 32 bytes") {
		t.Fatalf("expected key-length error, got %v", err)
	}
}

func TestValidate_UnknownAPIVersion(t *testing.T) {
	cfg := validConfig()
	cfg.Cities["bg"] = CityConfig{URL: "https://vendor.example", Key: "k", API: "v3"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must be v1 or v2") {
		t.Fatalf("expected api-version error, got %v", err)
	}
}
