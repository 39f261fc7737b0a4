package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"
)

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_USER", "rentiq")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "rentiq")

	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "3306")
	if got, want := DatabaseDSN(), "rentiq:secret@tcp(10.0.0.5:3306)/rentiq?multiStatements=true&parseTime=true&loc=UTC"; got != want {
		t.Fatalf("tcp dsn = %q, want %q", got, want)
	}

	t.Setenv("DB_HOST", "/cloudsql/proj:region:inst")
	if got, want := DatabaseDSN(), "rentiq:secret@unix(/cloudsql/proj:region:inst)/rentiq?multiStatements=true&parseTime=true&loc=UTC"; got != want {
		t.Fatalf("socket dsn = %q, want %q", got, want)
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if lvl := logLevelFromEnv(); lvl != logrus.ErrorLevel {
		t.Fatalf("default level = %v", lvl)
	}
	t.Setenv("LOG_LEVEL", "debug")
	if lvl := logLevelFromEnv(); lvl != logrus.DebugLevel {
		t.Fatalf("debug level = %v", lvl)
	}
	t.Setenv("LOG_LEVEL", "chatty")
	if lvl := logLevelFromEnv(); lvl != logrus.ErrorLevel {
		t.Fatalf("bad level = %v", lvl)
	}
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("REQUIRE_USER_APPROVAL", "")
	if !RequireUserApproval() {
		t.Fatalf("approval should be required by default")
	}
	t.Setenv("REQUIRE_USER_APPROVAL", "no")
	if RequireUserApproval() {
		t.Fatalf("approval should be off")
	}
	t.Setenv("DEFAULT_COUNTRY_CODE", " MM ")
	if got := DefaultCountryCode(); got != "MM" {
		t.Fatalf("country = %q", got)
	}
}

func TestWhereHasBusinessID(t *testing.T) {
	cases := []struct {
		name string
		expr clause.Expression
		want bool
	}{
		{"eq column", clause.Where{Exprs: []clause.Expression{clause.Eq{Column: clause.Column{Name: "business_id"}, Value: "b"}}}, true},
		{"raw sql", clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "clients.business_id = ?"}}}, true},
		{"nested and", clause.Where{Exprs: []clause.Expression{clause.And(clause.Eq{Column: "id", Value: 1}, clause.Eq{Column: "business_id", Value: "b"})}}, true},
		{"other column", clause.Where{Exprs: []clause.Expression{clause.Eq{Column: clause.Column{Name: "client_id"}, Value: 3}}}, false},
	}
	for _, tc := range cases {
		if got := whereHasBusinessID(clause.Clause{Expression: tc.expr}); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
	if whereHasBusinessID(clause.Clause{}) {
		t.Fatalf("empty clause should not match")
	}
}

func TestEnsureGateProbeTimeoutFromEnv(t *testing.T) {
	t.Setenv("GATE_TESTPROBE_PROBE_TIMEOUT", "3s")
	t.Setenv("GATE_TESTBAD_PROBE_TIMEOUT", "soon")

	if got := durationFromEnv("GATE_TESTPROBE_PROBE_TIMEOUT", time.Second); got != 3*time.Second {
		t.Fatalf("want 3s, got %s", got)
	}
	if got := durationFromEnv("GATE_TESTBAD_PROBE_TIMEOUT", time.Second); got != time.Second {
		t.Fatalf("invalid duration should fall back, got %s", got)
	}
	first := EnsureGate("testprobe", 1, time.Second)
	if EnsureGate("testprobe", 9, time.Minute) != first {
		t.Fatal("EnsureGate must return the registered gate")
	}
}
