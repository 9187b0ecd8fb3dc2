package migrations

import (
	"strings"
	"testing"
)

func TestUpListsInitialSchema(t *testing.T) {
	names, err := Up()
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(names) == 0 || names[0] != "001_initial.up.sql" {
		t.Fatalf("expected 001_initial.up.sql first, got %v", names)
	}
	script, err := files.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, table := range []string{"users", "matches", "match_players", "match_actions"} {
		if !strings.Contains(string(script), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %s", table)
		}
	}
}
