package partner

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks signature (the value of an inbound
// "X-<Partner>-Signature: sha256=<hex>" header) against an HMAC-SHA256 of
// payload using secret, in constant time. Grounded on the Slack signing-
// secret verification pattern, generalized to the generic partner webhook
// scheme in spec.md §6.
func VerifySignature(signature string, payload []byte, secret string) bool {
	const prefix = "sha256="
	hexDigest, ok := strings.CutPrefix(signature, prefix)
	if !ok {
		return false
	}

	expected, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	computed := mac.Sum(nil)

	return hmac.Equal(expected, computed)
}
