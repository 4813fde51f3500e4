package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/config"
	"github.com/Leganyst/appointment-booking/internal/schedule"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DB: &config.DBConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "booking.db"),
		},
		Server:  config.ServerConfig{AllowedOrigins: []string{"*"}},
		Auth:    config.AuthConfig{JWTSecret: "container-test-secret", JWTTTL: time.Hour},
		Booking: config.BookingConfig{TokenTTL: 10 * time.Minute, DefaultSlotMinutes: 30},
		Slots:   config.SlotsConfig{HorizonDays: 3, RefreshInterval: time.Hour, CacheMaxAge: time.Minute, LeaseTTL: time.Minute},
		Jobs: config.JobsConfig{
			TokenSweepInterval: time.Hour,
			TokenRetention:     time.Hour,
			ReminderLead:       time.Hour,
			ReminderInterval:   time.Hour,
		},
		Mail:   config.MailConfig{Provider: "dev", FromEmail: "no-reply@example.com"},
		Notify: config.NotifyConfig{MaxAttempts: 1},
	}
}

func TestContainer_WiresServices(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close()

	if c.Redis != nil || c.Bus != nil {
		t.Fatalf("redis and nats must stay disabled without urls")
	}
	if err := c.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := c.SubscribeNotifications(); err != nil {
		t.Fatalf("SubscribeNotifications without nats: %v", err)
	}

	biz, err := c.Schedule.Onboard(ctx, schedule.BusinessInput{
		Name:        "Acme",
		Slug:        "acme",
		Timezone:    "UTC",
		OwnerUserID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}

	stats, err := c.Refresher.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if stats.Businesses != 1 || stats.Days != 3 {
		t.Fatalf("unexpected refresh stats: %+v", stats)
	}

	// 2030-01-07: понедельник.
	req := httptest.NewRequest(http.MethodGet, "/v1/businesses/"+biz.ID.String()+"/availability?date=2030-01-07", nil)
	rec := httptest.NewRecorder()
	c.HTTPHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("availability status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Slots []json.RawMessage `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(body.Slots))
	}

	srv, health := c.GRPCServer()
	if srv == nil || health == nil {
		t.Fatalf("grpc server must be built")
	}
	srv.Stop()

	runner := c.Runner()
	runner.Start(ctx)
	runner.Stop()
}

func TestContainer_BadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "://not-a-url"
	if _, err := NewContainer(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for malformed REDIS_URL")
	}
}
