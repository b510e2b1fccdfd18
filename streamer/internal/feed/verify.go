package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
)

type account struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

// VerifyHTTP asks the account endpoint who the credentials belong to.
func VerifyHTTP(ctx context.Context, hc *http.Client, cfg config.FeedConfig) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.VerifyURL, nil)
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	ApplyCredentials(req.Header, cfg.Credentials, cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify credentials: %w", err)
	}
	defer resp.Body.Close()

	if IsAuthStatus(resp.StatusCode) {
		return "", fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("verify credentials: status %d: %s", resp.StatusCode, body)
	}

	var acct account
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return "", fmt.Errorf("decode account: %w", err)
	}
	if acct.ScreenName != "" {
		return acct.ScreenName, nil
	}
	if acct.Name != "" {
		return acct.Name, nil
	}
	return "", fmt.Errorf("verify credentials: account has no name")
}
