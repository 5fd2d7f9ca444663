// services/secret_client.go
package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// SecretServiceClient resolves a learner's shared verification token from the
// platform's secret store. Tokens are never persisted here; they are fetched
// per exchange and threaded into the codec as plain parameters.
type SecretServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type verificationTokenResponse struct {
	Token string `json:"token"`
}

func NewSecretServiceClient(baseURL, serviceToken string) *SecretServiceClient {
	return &SecretServiceClient{
		BaseURL: baseURL,
		Token:   serviceToken,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// VerificationToken fetches the shared secret for one learner-server pairing.
func (c *SecretServiceClient) VerificationToken(userID string) (string, error) {
	endpoint := fmt.Sprintf("%s/secrets/verification-tokens/%s", c.BaseURL, url.PathEscape(userID))

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("secret service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("no verification token registered for user %s", userID)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("SecretService token lookup returned %d: %s", resp.StatusCode, string(body))
		return "", fmt.Errorf("secret service returned status %d", resp.StatusCode)
	}

	var out verificationTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("malformed secret service response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("secret service returned an empty token for user %s", userID)
	}
	return out.Token, nil
}
