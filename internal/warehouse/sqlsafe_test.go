package warehouse

import "testing"

func TestEscapeString(t *testing.T) {
	if got := EscapeString("O'Brien's job"); got != "O''Brien''s job" {
		t.Fatalf("unexpected escape: %s", got)
	}
	if got := EscapeString("plain"); got != "plain" {
		t.Fatalf("unexpected escape: %s", got)
	}
}

func TestSafeIdentifier(t *testing.T) {
	valid := []string{"catalog.schema", "catalog.schema.table", "tbl_1", "A.b_2.C3"}
	for _, id := range valid {
		if _, err := SafeIdentifier(id, "identifier"); err != nil {
			t.Fatalf("expected %q to be valid: %v", id, err)
		}
	}

	invalid := []string{"", "cat;drop", "a.b.", ".a", "a b", "x'y", "a-b"}
	for _, id := range invalid {
		if _, err := SafeIdentifier(id, "identifier"); err == nil {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
}

func TestSafeTimestamp(t *testing.T) {
	valid := []string{
		"2024-03-01T10:00:00Z",
		"2024-03-01T10:00:00.123+02:00",
		"2024-03-01 10:00:00",
	}
	for _, ts := range valid {
		if _, err := SafeTimestamp(ts); err != nil {
			t.Fatalf("expected %q to be valid: %v", ts, err)
		}
	}

	invalid := []string{"", "now()", "2024-03-01", "2024-03-01T10:00:00'; DROP TABLE x; --"}
	for _, ts := range invalid {
		if _, err := SafeTimestamp(ts); err == nil {
			t.Fatalf("expected %q to be rejected", ts)
		}
	}
}

func TestQuotedList(t *testing.T) {
	got := QuotedList([]string{"Databricks SQL", "it's fine"})
	want := "'Databricks SQL','it''s fine'"
	if got != want {
		t.Fatalf("QuotedList = %s, want %s", got, want)
	}
}
