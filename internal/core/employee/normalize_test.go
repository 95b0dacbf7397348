package employee

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		" Jane@Co.com ":   "jane@co.com",
		"JANE@CO.COM":     "jane@co.com",
		"\tjane@co.com\n": "jane@co.com",
	}
	for in, want := range cases {
		got, err := NormalizeEmail(in)
		if err != nil {
			t.Fatalf("NormalizeEmail(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "   ", "not-an-email", "Jane <Jane@Co.com>", "Mallory Admin <Jane@Co.com>", "jane@co.com, bob@co.com"} {
		if _, err := NormalizeEmail(in); !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("NormalizeEmail(%q) expected ErrInvalidEmail, got %v", in, err)
		}
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, err := ParseRole("")
	if err != nil || role != RoleEmployee {
		t.Fatalf("expected default employee role, got %q %v", role, err)
	}

	role, err = ParseRole(" Reporting_Manager ")
	if err != nil || role != RoleReportingManager {
		t.Fatalf("expected reporting_manager, got %q %v", role, err)
	}

	if _, err := ParseRole("owner"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestNormalizeReference(t *testing.T) {
	t.Parallel()

	if ref, err := NormalizeReference(nil); ref != nil || err != nil {
		t.Fatalf("expected nil reference, got %v %v", ref, err)
	}

	blank := "  "
	if ref, err := NormalizeReference(&blank); ref != nil || err != nil {
		t.Fatalf("expected blank to clear reference, got %v %v", ref, err)
	}

	upper := " 5F0C2A4E-8D8A-4B8E-9A55-0F1C2D3E4F50 "
	ref, err := NormalizeReference(&upper)
	if err != nil {
		t.Fatalf("NormalizeReference returned error: %v", err)
	}
	if *ref != "5f0c2a4e-8d8a-4b8e-9a55-0f1c2d3e4f50" {
		t.Fatalf("expected canonical uuid, got %s", *ref)
	}

	bad := "team-1"
	if _, err := NormalizeReference(&bad); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestNormalizeDate(t *testing.T) {
	t.Parallel()

	in := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	if got := NormalizeDate(in); !got.Equal(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}
}
