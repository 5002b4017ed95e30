package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"github.com/iliyamo/locator-validation/internal/source"
)

// Fingerprint hashes the normalized request: SHA-256 over its JSON
// canonicalization (RFC 8785), hex encoded.
func Fingerprint(q source.Query) (string, error) {
	raw, err := json.Marshal(struct {
		Locator   string  `json:"locator"`
		DNI       string  `json:"dni"`
		ServiceID *string `json:"serviceId"`
	}{q.Locator, q.DNI, q.ServiceID})
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
