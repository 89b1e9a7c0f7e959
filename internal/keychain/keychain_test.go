package keychain

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestSaveLoadDelete(t *testing.T) {
	m := New(keyring.NewArrayKeyring(nil))

	if _, err := m.LoadSecret("https://db.example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.SaveSecret("https://db.example.com/", "s3cret"); err != nil {
		t.Fatalf("SaveSecret: %v", err)
	}
	got, err := m.LoadSecret("https://db.example.com")
	if err != nil || got != "s3cret" {
		t.Fatalf("LoadSecret: %q %v", got, err)
	}

	if err := m.DeleteSecret("https://db.example.com"); err != nil {
		t.Fatalf("DeleteSecret: %v", err)
	}
	if _, err := m.LoadSecret("https://db.example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := m.DeleteSecret("https://db.example.com"); err != nil {
		t.Fatalf("second DeleteSecret: %v", err)
	}
}

func TestSaveRequiresURL(t *testing.T) {
	m := New(keyring.NewArrayKeyring(nil))
	if err := m.SaveSecret(" ", "x"); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestSecretsAreScopedPerDatabase(t *testing.T) {
	m := New(keyring.NewArrayKeyring(nil))
	_ = m.SaveSecret("https://a.example.com", "a")
	_ = m.SaveSecret("https://b.example.com", "b")

	if got, _ := m.LoadSecret("https://a.example.com"); got != "a" {
		t.Fatalf("a: %q", got)
	}
	if got, _ := m.LoadSecret("https://b.example.com"); got != "b" {
		t.Fatalf("b: %q", got)
	}
}
