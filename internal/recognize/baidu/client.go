// Package baidu implements the primary OCR provider against the Baidu OCR
// REST API: an OAuth client-credentials token exchange plus the handwriting
// recognition endpoint.
package baidu

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casekit/evidence-extractor/internal/common"
)

const (
	tokenPath     = "/oauth/2.0/token"
	recognizePath = "/rest/2.0/ocr/v1/handwriting"
)

// Baidu error codes that mean the access token is stale or invalid.
const (
	codeAccessTokenInvalid = 110
	codeAccessTokenExpired = 111
)

type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string // default https://aip.baidubce.com
	Timeout   time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://aip.baidubce.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Configured reports whether provider credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.SecretKey != ""
}

// Authenticate exchanges the API key pair for a bearer token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%w: baidu credentials not configured", common.ErrAuth)
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", c.cfg.APIKey)
	q.Set("client_secret", c.cfg.SecretKey)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + tokenPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", common.ErrTransport, err)
	}
	defer c.closeBody(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token exchange status %d: %s", common.ErrAuth, resp.StatusCode, raw)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", common.ErrAuth, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: token response carried no access_token", common.ErrAuth)
	}

	c.logger.Info("baidu.token.ok")
	return body.AccessToken, nil
}

// Recognize submits one page image and returns the recognized lines joined
// with newlines, preserving the provider's reading order.
func (c *Client) Recognize(ctx context.Context, png []byte, token string) (string, error) {
	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(png))
	form.Set("detect_direction", "true")
	form.Set("paragraph", "true")
	form.Set("probability", "true")

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + recognizePath + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: recognize: %v", common.ErrTransport, err)
	}
	defer c.closeBody(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: recognize status %d: %s", common.ErrTransport, resp.StatusCode, raw)
	}

	var body struct {
		WordsResult []struct {
			Words string `json:"words"`
		} `json:"words_result"`
		ErrorCode int    `json:"error_code"`
		ErrorMsg  string `json:"error_msg"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("%w: decode recognize response: %v", common.ErrRecognition, err)
	}

	if body.ErrorCode != 0 {
		if body.ErrorCode == codeAccessTokenInvalid || body.ErrorCode == codeAccessTokenExpired {
			return "", fmt.Errorf("%w: baidu error %d: %s", common.ErrAuth, body.ErrorCode, body.ErrorMsg)
		}
		return "", fmt.Errorf("%w: baidu error %d: %s", common.ErrRecognition, body.ErrorCode, body.ErrorMsg)
	}

	lines := make([]string, 0, len(body.WordsResult))
	for _, w := range body.WordsResult {
		lines = append(lines, w.Words)
	}
	text := strings.Join(lines, "\n")

	c.logger.Debug("baidu.recognize.ok",
		"lines", len(lines),
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warn("baidu.response_body_close_error", "error", err)
	}
}
