package db

import (
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":        {Data: []byte("CREATE TABLE organization (id UUID PRIMARY KEY);")},
		"002_scheduling.sql":  {Data: []byte("CREATE TABLE appointment (id UUID PRIMARY KEY);")},
		"003_holidays.sql":    {Data: []byte("CREATE TABLE holiday (id UUID PRIMARY KEY);")},
		"embed.go":            {Data: []byte("package migrations")},
		"notes/004_draft.sql": {Data: []byte("SELECT 4;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_core.sql" {
		t.Errorf("unexpected first migration %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE organization (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	files := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}
	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	expected := []int{1, 2, 5, 10}
	if len(migrations) != len(expected) {
		t.Fatalf("expected %d migrations, got %d", len(expected), len(migrations))
	}
	for i, v := range expected {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	files := fstest.MapFS{
		"001_valid.sql":      {Data: []byte("SELECT 1;")},
		"readme.sql":         {Data: []byte("-- no version prefix")},
		"notes.txt":          {Data: []byte("not sql")},
		"abc_invalid.sql":    {Data: []byte("-- non-numeric prefix")},
		"002_also_valid.sql": {Data: []byte("SELECT 2;")},
	}
	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, files).LoadMigrations(); err == nil {
		t.Error("expected error for duplicate version")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestPendingAndStatus(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_core.sql"},
		{Version: 2, Name: "002_scheduling.sql"},
		{Version: 3, Name: "003_holidays.sql"},
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	done := map[int]time.Time{1: at}

	todo := pending(migrations, done)
	if len(todo) != 2 || todo[0].Version != 2 || todo[1].Version != 3 {
		t.Errorf("unexpected pending set %+v", todo)
	}

	statuses := buildStatus(migrations, done)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected migration 001 applied at %s, got %+v", at, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Error("expected migration 002 to be pending")
	}
}
