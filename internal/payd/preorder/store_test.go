package preorder

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"payd.lopezb.com/internal/payd/dict"
)

var refPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{5}-[0-9A-HJKMNP-TV-Z]{5}$`)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preorders.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func donation(t *testing.T) *dict.Dict {
	t.Helper()
	d := dict.New()
	for _, f := range [][2]string{
		{"Email", "donor@example.org"},
		{"Name", "A. Donor"},
		{"Amount", "25.00"},
		{"Currency", "EUR"},
		{"_amount", "2500"},
	} {
		if err := d.Append(f[0], f[1]); err != nil {
			t.Fatalf("append %q: %v", f[0], err)
		}
	}
	return d
}

func TestCreateAndLookup(t *testing.T) {
	s, _ := openTestStore(t)

	ref, err := s.Create(donation(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !refPattern.MatchString(ref) {
		t.Fatalf("reference %q does not match XXXXX-XXXXX", ref)
	}

	got, err := s.Lookup(ref)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if v := got.Get("Sepa-Ref"); v != ref {
		t.Errorf("Sepa-Ref = %q, want %q", v, ref)
	}
	if v := got.Get("Email"); v != "donor@example.org" {
		t.Errorf("Email = %q, want donor address", v)
	}
	if got.Has("_amount") {
		t.Error("internal field persisted, want capitalized fields only")
	}
	if _, err := time.Parse(timeFormat, got.Get("Creation-Time")); err != nil {
		t.Errorf("Creation-Time %q does not parse: %v", got.Get("Creation-Time"), err)
	}

	// Order survives the JSON round trip.
	items := got.Items()
	if len(items) < 2 || items[0].Name != "Email" || items[1].Name != "Name" {
		t.Errorf("field order not preserved: %v", items)
	}
}

func TestLookupUnknownRef(t *testing.T) {
	s, _ := openTestStore(t)

	if _, err := s.Lookup("AAAAA-AAAAA"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestCommit(t *testing.T) {
	s, _ := openTestStore(t)

	ref, err := s.Create(donation(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Commit(ref, "24.50", "EUR")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if v := got.Get("Amount"); v != "24.50" {
		t.Errorf("Amount = %q, want the committed amount", v)
	}
	if _, err := time.Parse(timeFormat, got.Get("Paid-Date")); err != nil {
		t.Errorf("Paid-Date %q does not parse: %v", got.Get("Paid-Date"), err)
	}

	// The update is persisted, not just returned.
	stored, err := s.Lookup(ref)
	if err != nil {
		t.Fatalf("lookup after commit: %v", err)
	}
	if v := stored.Get("Amount"); v != "24.50" {
		t.Errorf("stored Amount = %q, want the committed amount", v)
	}

	// Committing again restamps without error.
	if _, err := s.Commit(ref, "24.50", "EUR"); err != nil {
		t.Fatalf("second commit: %v", err)
	}
}

func TestCommitUnknownRef(t *testing.T) {
	s, _ := openTestStore(t)

	if _, err := s.Commit("AAAAA-AAAAA", "1.00", "EUR"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	s, path := openTestStore(t)

	ref, err := s.Create(donation(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Lookup(ref)
	if err != nil {
		t.Fatalf("lookup after reopen: %v", err)
	}
	if v := got.Get("Sepa-Ref"); v != ref {
		t.Errorf("Sepa-Ref = %q after reopen, want %q", v, ref)
	}
}

func TestCount(t *testing.T) {
	s, _ := openTestStore(t)

	if n, err := s.Count(); err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want 0, nil", n, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Create(donation(t)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if n, err := s.Count(); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3, nil", n, err)
	}
}

func TestMintRefShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ref, err := mintRef()
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if !refPattern.MatchString(ref) {
			t.Fatalf("reference %q does not match XXXXX-XXXXX", ref)
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %q within 200 mints", ref)
		}
		seen[ref] = true
	}
}
