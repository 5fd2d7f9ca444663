package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

// newRemoteServer behaves like a learner's verification server: it checks the
// request signature/headers and answers with a signed reply carrying data.
// replyOffset shifts the reply timestamp; replySecret lets tests answer with
// the wrong key.
func newRemoteServer(t *testing.T, secret, replySecret string, data map[string]interface{}, replyOffset time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timestamp, err := strconv.ParseInt(r.Header.Get("X-Verify-Timestamp"), 10, 64)
		if err != nil {
			t.Errorf("bad X-Verify-Timestamp header: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		nonce := r.Header.Get("X-Verify-Nonce")
		if len(nonce) != 32 { // 16 random bytes, hex encoded
			t.Errorf("nonce %q is not 16 hex-encoded bytes", nonce)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body["action"] != "verify_status" {
			t.Errorf("unexpected action %v", body["action"])
		}
		if !VerifyRequest(secret, timestamp, nonce, body, r.Header.Get("X-Verify-Signature")) {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		replyTimestamp := time.Now().Add(replyOffset).Unix()
		signature, err := SignReply(replySecret, replyTimestamp, data)
		if err != nil {
			t.Errorf("SignReply: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"timestamp": replyTimestamp,
			"data":      data,
			"signature": signature,
		})
	}))
}

func testClient(srv *httptest.Server) *VerificationClient {
	c := NewVerificationClient()
	if srv != nil {
		c.HTTPClient = srv.Client()
	}
	return c
}

func TestVerifyAllFieldsSatisfied(t *testing.T) {
	secret := "tok"
	srv := newRemoteServer(t, secret, secret, map[string]interface{}{
		"server": true,
		"db":     true,
	}, 0)
	defer srv.Close()

	result, err := testClient(srv).Verify(context.Background(), srv.URL, secret, []string{"server", "db"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Verified {
		t.Fatalf("expected verified, got: %s", result.Message)
	}
}

func TestVerifyStringFieldCountsAsSatisfied(t *testing.T) {
	secret := "tok"
	srv := newRemoteServer(t, secret, secret, map[string]interface{}{
		"version": "1.2.0",
	}, 0)
	defer srv.Close()

	result, err := testClient(srv).Verify(context.Background(), srv.URL, secret, []string{"version"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Verified {
		t.Fatalf("string-valued field should satisfy, got: %s", result.Message)
	}
}

func TestVerifyUnsatisfiedField(t *testing.T) {
	secret := "tok"
	srv := newRemoteServer(t, secret, secret, map[string]interface{}{
		"server":     true,
		"test_field": false,
	}, 0)
	defer srv.Close()

	result, err := testClient(srv).Verify(context.Background(), srv.URL, secret, []string{"server", "test_field"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Fatal("expected failed verdict")
	}
	if len(result.MissingFields) != 0 {
		t.Errorf("expected no missing fields, got %v", result.MissingFields)
	}
	if len(result.UnsatisfiedFields) != 1 || result.UnsatisfiedFields[0] != "test_field" {
		t.Errorf("expected unsatisfied [test_field], got %v", result.UnsatisfiedFields)
	}
	if result.Raw == nil {
		t.Error("failed verdict should keep the raw payload for diagnostics")
	}
}

func TestVerifyMissingField(t *testing.T) {
	secret := "tok"
	srv := newRemoteServer(t, secret, secret, map[string]interface{}{
		"server": true,
	}, 0)
	defer srv.Close()

	result, err := testClient(srv).Verify(context.Background(), srv.URL, secret, []string{"server", "db"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Fatal("expected failed verdict")
	}
	if len(result.MissingFields) != 1 || result.MissingFields[0] != "db" {
		t.Errorf("expected missing [db], got %v", result.MissingFields)
	}
	if len(result.UnsatisfiedFields) != 0 {
		t.Errorf("expected no unsatisfied fields, got %v", result.UnsatisfiedFields)
	}
}

func TestVerifyStaleReplyRejected(t *testing.T) {
	secret := "tok"
	srv := newRemoteServer(t, secret, secret, map[string]interface{}{
		"server": true,
	}, -10*time.Minute)
	defer srv.Close()

	result, err := testClient(srv).Verify(context.Background(), srv.URL, secret, []string{"server"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Fatal("stale reply must be rejected regardless of signature validity")
	}
	if !strings.Contains(result.Message, "freshness") {
		t.Errorf("expected a freshness failure, got: %s", result.Message)
	}
}

func TestVerifyBadReplySignatureRejected(t *testing.T) {
	secret := "tok"
	srv := newRemoteServer(t, secret, "some-other-token", map[string]interface{}{
		"server": true,
	}, 0)
	defer srv.Close()

	result, err := testClient(srv).Verify(context.Background(), srv.URL, secret, []string{"server"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Fatal("reply signed with the wrong secret must be rejected")
	}
	if !strings.Contains(result.Message, "signature") {
		t.Errorf("expected a signature failure, got: %s", result.Message)
	}
}

func TestVerifyNon2xxIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	result, err := testClient(srv).Verify(context.Background(), srv.URL, "tok", []string{"server"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Fatal("expected failed verdict")
	}
	if !strings.Contains(result.Message, "500") {
		t.Errorf("expected the status code in the message, got: %s", result.Message)
	}
}

func TestVerifyMalformedReplyIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	result, err := testClient(srv).Verify(context.Background(), srv.URL, "tok", []string{"server"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified || !strings.Contains(result.Message, "malformed") {
		t.Errorf("expected malformed-reply failure, got: %+v", result)
	}
}

func TestVerifyUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result, err := testClient(nil).Verify(context.Background(), url, "tok", []string{"server"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Fatal("expected failed verdict")
	}
	if !strings.Contains(result.Message, "could not reach") {
		t.Errorf("expected a transport failure, got: %s", result.Message)
	}
}
