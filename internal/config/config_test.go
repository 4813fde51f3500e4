package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", "test.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Booking.TokenTTL != 10*time.Minute {
		t.Fatalf("TokenTTL = %v, want 10m", cfg.Booking.TokenTTL)
	}
	if cfg.Booking.DefaultSlotMinutes != 30 {
		t.Fatalf("DefaultSlotMinutes = %d, want 30", cfg.Booking.DefaultSlotMinutes)
	}
	if cfg.Slots.HorizonDays != 30 {
		t.Fatalf("HorizonDays = %d, want 30", cfg.Slots.HorizonDays)
	}
	if cfg.DB.Driver != DriverSQLite {
		t.Fatalf("Driver = %q, want sqlite", cfg.DB.Driver)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("TOKEN_TTL", "5m")
	t.Setenv("CLIENT_CANCEL_CUTOFF", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Booking.TokenTTL != 5*time.Minute {
		t.Fatalf("TokenTTL = %v, want 5m", cfg.Booking.TokenTTL)
	}
	if cfg.Booking.ClientCancelCutoff != 2*time.Hour {
		t.Fatalf("ClientCancelCutoff = %v, want 2h", cfg.Booking.ClientCancelCutoff)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_InvalidSlotMinutes(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("BOOKING_DEFAULT_SLOT_MINUTES", "7")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for slot minutes not multiple of 5")
	}
}

func TestLoad_MailerSendRequiresKey(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("MAIL_PROVIDER", "mailersend")
	t.Setenv("MAILERSEND_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without MAILERSEND_API_KEY")
	}
}

func TestLoadDBConfig_UnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")

	if _, err := LoadDBConfig(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestRequireJWTSecret(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "short")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.RequireJWTSecret(); err == nil {
		t.Fatalf("expected error for short secret")
	}
	cfg.Auth.JWTSecret = "0123456789abcdef0123"
	if err := cfg.RequireJWTSecret(); err != nil {
		t.Fatalf("RequireJWTSecret: %v", err)
	}
}
