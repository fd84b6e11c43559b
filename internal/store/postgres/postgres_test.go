package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "screener"})
	if got != "postgres://u:p@db:5432/screener?sslmode=disable" {
		t.Fatalf("got %q", got)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit dsn: got %q", got)
	}
}

func TestMigrationFilesEmbedded(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_audit_log.sql" {
		t.Fatalf("migrations: %v", names)
	}
}

func TestBuildAuditQuery(t *testing.T) {
	q, args := buildAuditQuery(domain.ListOpts{})
	if strings.Contains(q, "WHERE") || len(args) != 0 {
		t.Fatalf("unfiltered: %s %v", q, args)
	}

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args = buildAuditQuery(domain.ListOpts{Event: "signal_activated", Symbol: "BTC/USDT", Since: &since, Limit: 10, Offset: 20})
	want := "SELECT id, event, symbol, detail, created_at FROM audit_log WHERE event = $1 AND symbol = $2 AND created_at >= $3 ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5"
	if q != want {
		t.Fatalf("query:\n got %s\nwant %s", q, want)
	}
	if len(args) != 5 || args[3] != 10 || args[4] != 20 {
		t.Fatalf("args: %v", args)
	}
}
