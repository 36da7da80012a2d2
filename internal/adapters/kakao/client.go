package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/forum-auth/internal/domain"
)

// Profile is the subset of the Kakao "current user" payload the service needs.
type Profile struct {
	ID    int64
	Email string
}

type Client interface {
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
	AuthorizeURL() string
	ExchangeCode(ctx context.Context, code string) (string, error)
}

type Config struct {
	ClientID    string
	RedirectURI string
	AuthURL     string
	APIURL      string
	Timeout     time.Duration
}

type httpClient struct {
	cfg     Config
	timeout time.Duration
	client  *http.Client
}

// NewHTTPClient performs each call exactly once; retry policy belongs to the caller.
func NewHTTPClient(cfg Config) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &httpClient{cfg: cfg, timeout: timeout, client: &http.Client{Timeout: timeout}}
}

type userMeResponse struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email string `json:"email"`
	} `json:"kakao_account"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *httpClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: access token is required", domain.ErrExternalAuth)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"/v2/user/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	var resp userMeResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == 0 {
		return nil, fmt.Errorf("%w: profile id missing", domain.ErrExternalAuth)
	}
	return &Profile{ID: resp.ID, Email: strings.ToLower(strings.TrimSpace(resp.KakaoAccount.Email))}, nil
}

func (c *httpClient) AuthorizeURL() string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	return c.cfg.AuthURL + "/oauth/authorize?" + q.Encode()
}

func (c *httpClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: authorization code is required", domain.ErrExternalAuth)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var resp tokenResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: access token missing in token response", domain.ErrExternalAuth)
	}
	return resp.AccessToken, nil
}

// do maps transport failures, timeouts and non-200 replies onto domain.ErrExternalAuth.
func (c *httpClient) do(req *http.Request, out interface{}) error {
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExternalAuth, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%w: kakao status=%d body=%s", domain.ErrExternalAuth, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode kakao response: %v", domain.ErrExternalAuth, err)
	}
	return nil
}
