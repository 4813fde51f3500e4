package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("JWT_SECRET", "cli-test-secret-0123456789")
	t.Setenv("MAIL_PROVIDER", "dev")
	t.Setenv("REDIS_URL", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("SLOTS_HORIZON_DAYS", "2")
	t.Setenv("LOG_LEVEL", "error")
}

func field(out, key string) string {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, key+"="); ok {
			return v
		}
	}
	return ""
}

func TestOnboardAndRefresh(t *testing.T) {
	setEnv(t)

	if _, err := run(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := run(t, "onboard", "--name", "Acme Dental", "--slug", "acme-dental", "--timezone", "Europe/Berlin")
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	bizID := field(out, "business_id")
	if bizID == "" || field(out, "owner_token") == "" {
		t.Fatalf("unexpected onboard output: %q", out)
	}

	if _, err := run(t, "onboard", "--name", "Other", "--slug", "acme-dental"); err == nil {
		t.Fatalf("expected duplicate slug to fail")
	}

	out, err = run(t, "refresh-slots", "--business", bizID)
	if err != nil {
		t.Fatalf("refresh-slots: %v", err)
	}
	if !strings.Contains(out, "businesses=1 days=2") {
		t.Fatalf("unexpected refresh output: %q", out)
	}

	if _, err := run(t, "refresh-slots", "--business", "nope"); err == nil {
		t.Fatalf("expected error for malformed business id")
	}
}

func TestOnboard_RequiresSecret(t *testing.T) {
	setEnv(t)
	t.Setenv("JWT_SECRET", "")

	if _, err := run(t, "onboard", "--name", "Acme", "--slug", "acme"); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}
