package cache

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprinter derives an opaque credential fingerprint so cache entries can be tied to the
// password that produced them without keeping the password around.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter creates a Fingerprinter with a random per-process key.
func NewFingerprinter() (Fingerprinter, error) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	if err != nil {
		return Fingerprinter{}, err
	}
	return Fingerprinter{key: key}, nil
}

func (f Fingerprinter) Of(username, password string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(username))
	mac.Write([]byte{0})
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}
