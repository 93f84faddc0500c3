package delivery

import (
	"errors"
	"net/url"
	"regexp"
	"testing"

	"github.com/penshort/beacon/internal/model"
)

var hex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestChecksum_KnownVector(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Checksum("ab", "c"); got != want {
		t.Fatalf("Checksum = %s, want %s", got, want)
	}
}

func TestSign_AddsChecksumOnlyWithSalt(t *testing.T) {
	params := url.Values{"app_key": {"k"}, "events": {`[{"key":"a"}]`}}

	unsigned := Sign(params, "")
	if unsigned.Has(model.ParamChecksum) {
		t.Fatal("checksum added without salt")
	}

	signed := Sign(params, "salt")
	sum := signed.Get(model.ParamChecksum)
	if !hex64.MatchString(sum) {
		t.Fatalf("checksum = %q, want 64 hex chars", sum)
	}
	if sum != Checksum(params.Encode(), "salt") {
		t.Fatal("checksum does not cover the encoded params")
	}
	if params.Has(model.ParamChecksum) {
		t.Fatal("Sign mutated its input")
	}
}

func TestVerifyChecksum(t *testing.T) {
	signed := Sign(url.Values{"a": {"1"}, "b": {"2"}}, "salt")

	if err := VerifyChecksum(signed, "salt"); err != nil {
		t.Fatalf("VerifyChecksum: %v", err)
	}
	if err := VerifyChecksum(signed, "other"); !errors.Is(err, ErrChecksum) {
		t.Fatalf("wrong salt: err = %v", err)
	}

	signed.Set("a", "tampered")
	if err := VerifyChecksum(signed, "salt"); !errors.Is(err, ErrChecksum) {
		t.Fatalf("tampered: err = %v", err)
	}
	if err := VerifyChecksum(url.Values{"a": {"1"}}, "salt"); !errors.Is(err, ErrChecksum) {
		t.Fatalf("missing: err = %v", err)
	}
}
