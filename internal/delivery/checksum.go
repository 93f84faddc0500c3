package delivery

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"

	"github.com/penshort/beacon/internal/model"
)

// Checksum returns the hex SHA-256 digest of payload followed by salt.
func Checksum(payload, salt string) string {
	sum := sha256.Sum256([]byte(payload + salt))
	return hex.EncodeToString(sum[:])
}

// Sign returns a copy of params with checksum256 added when salt is set.
// The digest covers the canonical (key-sorted) encoding of params.
func Sign(params url.Values, salt string) url.Values {
	out := make(url.Values, len(params)+1)
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	out.Del(model.ParamChecksum)
	if salt == "" {
		return out
	}
	out.Set(model.ParamChecksum, Checksum(out.Encode(), salt))
	return out
}

// VerifyChecksum checks the checksum256 carried by params against salt.
func VerifyChecksum(params url.Values, salt string) error {
	got := params.Get(model.ParamChecksum)
	if got == "" {
		return ErrChecksum
	}
	rest := make(url.Values, len(params))
	for k, v := range params {
		if k != model.ParamChecksum {
			rest[k] = v
		}
	}
	want := Checksum(rest.Encode(), salt)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return ErrChecksum
	}
	return nil
}
