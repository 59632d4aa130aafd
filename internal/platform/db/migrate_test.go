package db

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/clinicdesk/clinic/migrations"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"002_counters.sql": {Data: []byte("CREATE TABLE invoice_counters (doctor_id TEXT);")},
		"001_clinic.sql":   {Data: []byte("CREATE TABLE appointments (id UUID);\n-- +down\nDROP TABLE appointments;")},
		"010_reports.sql":  {Data: []byte("CREATE VIEW r AS SELECT 1;")},
		"README.md":        {Data: []byte("not a migration")},
		"notes.sql":        {Data: []byte("no numeric prefix")},
		"abc_bad.sql":      {Data: []byte("non-numeric prefix")},
	}

	migs, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migs))
	}

	wantVersions := []int{1, 2, 10}
	for i, v := range wantVersions {
		if migs[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migs[i].Version)
		}
	}

	if migs[0].SQL != "CREATE TABLE appointments (id UUID);" {
		t.Errorf("unexpected up SQL: %q", migs[0].SQL)
	}
	if migs[0].DownSQL != "DROP TABLE appointments;" {
		t.Errorf("unexpected down SQL: %q", migs[0].DownSQL)
	}
	if migs[1].DownSQL != "" {
		t.Errorf("expected no down SQL, got %q", migs[1].DownSQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"01_b.sql":  {Data: []byte("SELECT 2;")},
	}
	if _, err := NewMigrator(nil, files).LoadMigrations(); err == nil {
		t.Error("expected error for duplicate version")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migs, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migs))
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) == 0 {
		t.Fatal("expected embedded migrations")
	}
	if migs[0].Version != 1 {
		t.Errorf("expected first version 1, got %d", migs[0].Version)
	}
	for _, table := range []string{"appointments", "invoice_counters"} {
		if !strings.Contains(migs[0].SQL, table) {
			t.Errorf("expected %s in first migration", table)
		}
	}
	if migs[0].DownSQL == "" {
		t.Error("expected a down section in the first migration")
	}
}

func TestBuildStatus(t *testing.T) {
	migs := []Migration{
		{Version: 1, Name: "001_clinic.sql"},
		{Version: 2, Name: "002_counters.sql"},
		{Version: 3, Name: "003_reports.sql"},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	statuses := buildStatus(migs, map[int]time.Time{1: at})
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected migration 001 applied at %v, got %+v", at, statuses[0])
	}
	for _, s := range statuses[1:] {
		if s.Applied || s.AppliedAt != nil {
			t.Errorf("expected %s pending, got %+v", s.Name, s)
		}
	}
}

func TestNewMigrator(t *testing.T) {
	files := fstest.MapFS{}
	m := NewMigrator(nil, files)
	if m == nil {
		t.Fatal("expected non-nil Migrator")
	}
	if m.pool != nil {
		t.Error("expected nil pool")
	}
}
