// services/signer.go
package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DefaultFreshnessWindow is the maximum allowed skew, in seconds, between a
// signed message's timestamp and the verifier's clock.
const DefaultFreshnessWindow int64 = 300

// CanonicalJSON serializes a payload with stable key ordering. Both sides of
// the verification exchange must produce the identical byte string or
// signatures will not match, which is why payloads are string-keyed maps:
// encoding/json sorts map keys, giving us the canonical form for free.
func CanonicalJSON(payload map[string]interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonical serialization failed: %w", err)
	}
	return string(raw), nil
}

// SignRequest computes the hex HMAC-SHA256 signature of an outbound
// verification request: "{timestamp}.{nonce}.{canonicalJSON(body)}".
func SignRequest(secret string, timestamp int64, nonce string, body map[string]interface{}) (string, error) {
	canonical, err := CanonicalJSON(body)
	if err != nil {
		return "", err
	}
	return hmacSHA256Hex(secret, fmt.Sprintf("%d.%s.%s", timestamp, nonce, canonical)), nil
}

// VerifyRequest recomputes the request signature and compares in constant
// time. Any serialization failure counts as a verification failure.
func VerifyRequest(secret string, timestamp int64, nonce string, body map[string]interface{}, signature string) bool {
	expected, err := SignRequest(secret, timestamp, nonce, body)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignReply computes the signature of a verification reply. The reply scheme
// signs only "{timestamp}.{canonicalJSON(data)}" — the exchange is stateless
// and the remote party does not echo the nonce back.
func SignReply(secret string, timestamp int64, data map[string]interface{}) (string, error) {
	canonical, err := CanonicalJSON(data)
	if err != nil {
		return "", err
	}
	return hmacSHA256Hex(secret, fmt.Sprintf("%d.%s", timestamp, canonical)), nil
}

// VerifyReply checks a reply signature in constant time.
func VerifyReply(secret string, timestamp int64, data map[string]interface{}, signature string) bool {
	expected, err := SignReply(secret, timestamp, data)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// FreshTimestamp reports whether a message timestamp is within the freshness
// window of now (absolute difference, so both stale and future-dated messages
// are rejected). This bounds replay exposure; deduplication inside the window
// is the nonce's job and is not handled here.
func FreshTimestamp(timestamp, now, window int64) bool {
	diff := timestamp - now
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

func hmacSHA256Hex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
