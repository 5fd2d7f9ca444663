// services/verification.go
package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"learning-quest-system/utils"
)

// VerificationClient drives one signed exchange with a learner-operated
// server and reduces the reply to a pass/fail verdict. It is stateless;
// callers may run any number of exchanges concurrently. Nothing here is
// retried — retry policy belongs to the quest-completion workflow.
type VerificationClient struct {
	HTTPClient *http.Client
	Window     int64 // freshness window in seconds

	// Now is swappable so tests can pin the clock
	Now func() time.Time
}

func NewVerificationClient() *VerificationClient {
	return &VerificationClient{
		HTTPClient: utils.HTTPClient,
		Window:     DefaultFreshnessWindow,
		Now:        time.Now,
	}
}

// VerifyResult is the structured verdict of one exchange. Expected failures
// (transport, bad signature, stale reply, unsatisfied fields) land here, not
// in an error.
type VerifyResult struct {
	Verified          bool                   `json:"verified"`
	Message           string                 `json:"message"`
	MissingFields     []string               `json:"missing_fields,omitempty"`
	UnsatisfiedFields []string               `json:"unsatisfied_fields,omitempty"`
	Raw               map[string]interface{} `json:"raw,omitempty"` // reply payload, kept on failure for diagnostics
}

type verifyReply struct {
	Status    string                 `json:"status"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Signature string                 `json:"signature"`
}

func failed(format string, args ...interface{}) *VerifyResult {
	return &VerifyResult{Verified: false, Message: fmt.Sprintf(format, args...)}
}

// Verify performs the full exchange: build a signed request, POST it to
// targetURL, validate the signed reply, and check every required field is
// present and not explicitly false. The returned error is reserved for local
// infrastructure problems (nonce generation, request construction); every
// protocol-level failure is reported through the result.
func (c *VerificationClient) Verify(ctx context.Context, targetURL, secret string, requiredFields []string) (*VerifyResult, error) {
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)
	timestamp := c.Now().Unix()

	// timestamp and nonce ride in the body too so the remote side can
	// cross-check them against the headers
	body := map[string]interface{}{
		"action":    "verify_status",
		"timestamp": timestamp,
		"nonce":     nonce,
	}
	signature, err := SignRequest(secret, timestamp, nonce, body)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return failed("invalid verification URL %q: %v", targetURL, err), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Verify-Signature", signature)
	req.Header.Set("X-Verify-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Verify-Nonce", nonce)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return failed("could not reach verification server: %v", err), nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failed("verification server returned status %d: %s", resp.StatusCode, string(snippet)), nil
	}

	var reply verifyReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply); err != nil {
		return failed("malformed verification reply: %v", err), nil
	}
	if reply.Timestamp == 0 || reply.Signature == "" || reply.Data == nil {
		return failed("incomplete verification reply: timestamp, data and signature are required"), nil
	}

	if !FreshTimestamp(reply.Timestamp, c.Now().Unix(), c.Window) {
		return failed("verification reply timestamp outside the %ds freshness window", c.Window), nil
	}
	if !VerifyReply(secret, reply.Timestamp, reply.Data, reply.Signature) {
		return failed("verification reply signature mismatch"), nil
	}

	return reduceFields(reply.Data, requiredFields), nil
}

// reduceFields accepts the payload only if every required field is present
// and not explicitly false. Missing and false-valued fields are reported as
// separate lists so the learner can fix their server precisely.
func reduceFields(data map[string]interface{}, requiredFields []string) *VerifyResult {
	result := &VerifyResult{Raw: data}
	for _, field := range requiredFields {
		value, ok := data[field]
		if !ok {
			result.MissingFields = append(result.MissingFields, field)
			continue
		}
		if b, isBool := value.(bool); isBool && !b {
			result.UnsatisfiedFields = append(result.UnsatisfiedFields, field)
		}
	}

	switch {
	case len(result.MissingFields) == 0 && len(result.UnsatisfiedFields) == 0:
		result.Verified = true
		result.Message = "all required checks passed"
		result.Raw = nil
	case len(result.MissingFields) > 0 && len(result.UnsatisfiedFields) > 0:
		result.Message = fmt.Sprintf("missing fields %v, unsatisfied fields %v",
			result.MissingFields, result.UnsatisfiedFields)
	case len(result.MissingFields) > 0:
		result.Message = fmt.Sprintf("missing fields %v", result.MissingFields)
	default:
		result.Message = fmt.Sprintf("unsatisfied fields %v", result.UnsatisfiedFields)
	}
	return result
}
