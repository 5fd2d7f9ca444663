package services

import (
	"testing"
)

func tamper(s string) string {
	if s == "" {
		return "x"
	}
	if s[0] == 'a' {
		return "b" + s[1:]
	}
	return "a" + s[1:]
}

func TestSignVerifyRequestRoundTrip(t *testing.T) {
	secret := "shared-token"
	var timestamp int64 = 1756600000
	nonce := "00112233445566778899aabbccddeeff"
	body := map[string]interface{}{
		"action":    "verify_status",
		"timestamp": timestamp,
		"nonce":     nonce,
	}

	sig, err := SignRequest(secret, timestamp, nonce, body)
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	if !VerifyRequest(secret, timestamp, nonce, body, sig) {
		t.Fatal("expected signature to verify")
	}

	if VerifyRequest(secret, timestamp, nonce, body, tamper(sig)) {
		t.Error("tampered signature verified")
	}
	if VerifyRequest(secret, timestamp+1, nonce, body, sig) {
		t.Error("shifted timestamp verified")
	}
	if VerifyRequest(secret, timestamp, tamper(nonce), body, sig) {
		t.Error("tampered nonce verified")
	}

	tamperedBody := map[string]interface{}{
		"action":    "verify_status_x",
		"timestamp": timestamp,
		"nonce":     nonce,
	}
	if VerifyRequest(secret, timestamp, nonce, tamperedBody, sig) {
		t.Error("tampered body verified")
	}
	if VerifyRequest("other-token", timestamp, nonce, body, sig) {
		t.Error("wrong secret verified")
	}
}

func TestSignVerifyReplyRoundTrip(t *testing.T) {
	secret := "shared-token"
	var timestamp int64 = 1756600000
	data := map[string]interface{}{
		"server":  true,
		"version": "1.2.0",
	}

	sig, err := SignReply(secret, timestamp, data)
	if err != nil {
		t.Fatalf("SignReply: %v", err)
	}
	if !VerifyReply(secret, timestamp, data, sig) {
		t.Fatal("expected reply signature to verify")
	}
	if VerifyReply(secret, timestamp, data, tamper(sig)) {
		t.Error("tampered reply signature verified")
	}
	if VerifyReply(secret, timestamp+1, data, sig) {
		t.Error("shifted reply timestamp verified")
	}
}

// Canonical serialization must not depend on how the map was assembled.
func TestCanonicalJSONStable(t *testing.T) {
	first := map[string]interface{}{}
	first["zeta"] = true
	first["alpha"] = "1"
	first["mid"] = false

	second := map[string]interface{}{}
	second["mid"] = false
	second["alpha"] = "1"
	second["zeta"] = true

	a, err := CanonicalJSON(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalJSON(second)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("canonical forms differ: %q vs %q", a, b)
	}

	sigA, _ := SignReply("s", 1, first)
	sigB, _ := SignReply("s", 1, second)
	if sigA != sigB {
		t.Error("signatures differ for equal payloads")
	}
}

func TestFreshTimestamp(t *testing.T) {
	var now int64 = 1756600000
	window := DefaultFreshnessWindow

	cases := []struct {
		name      string
		timestamp int64
		want      bool
	}{
		{"exact", now, true},
		{"slightly stale", now - 10, true},
		{"slightly ahead", now + 10, true},
		{"window edge past", now - window, true},
		{"window edge future", now + window, true},
		{"too old", now - window - 1, false},
		{"too far ahead", now + window + 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FreshTimestamp(tc.timestamp, now, window); got != tc.want {
				t.Errorf("FreshTimestamp(%d, %d, %d) = %v, want %v",
					tc.timestamp, now, window, got, tc.want)
			}
		})
	}
}
