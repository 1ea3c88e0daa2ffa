package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/UnamanoDAO/AI-IELTS/internal/clock"
	"github.com/UnamanoDAO/AI-IELTS/internal/token"
)

// DefaultTokenRegions are tried in order when creating an NLS token.
var DefaultTokenRegions = []string{"cn-shanghai", "cn-beijing"}

const (
	nlsMetaAPIVersion = "2019-02-28"
	defaultTokenTries = 3
	defaultTokenDelay = 2 * time.Second
)

// NLSTokenSource creates NLS access tokens through the CreateToken RPC.
type NLSTokenSource struct {
	AccessKeyID     string
	AccessKeySecret string

	Regions    []string      // defaults to DefaultTokenRegions
	Attempts   int           // per region, defaults to 3
	RetryDelay time.Duration // between attempts in one region, defaults to 2s

	// Endpoint maps a region to its meta endpoint. Tests point it at a
	// local server.
	Endpoint func(region string) string

	Client *http.Client
	Clock  clock.Clock
}

type createTokenResponse struct {
	Token struct {
		ID         string `json:"Id"`
		ExpireTime int64  `json:"ExpireTime"`
		UserID     string `json:"UserId"`
	} `json:"Token"`
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	ErrMsg    string `json:"ErrMsg"`
	RequestID string `json:"RequestId"`
}

func defaultMetaEndpoint(region string) string {
	return fmt.Sprintf("https://nls-meta.%s.aliyuncs.com", region)
}

// Fetch implements token.Source. Each region is tried Attempts times before
// moving to the next; the last error is returned when all fail.
func (s *NLSTokenSource) Fetch(ctx context.Context) (token.Token, error) {
	if s.AccessKeyID == "" || s.AccessKeySecret == "" {
		return token.Token{}, errors.New("access key id and secret are required")
	}
	regions := s.Regions
	if len(regions) == 0 {
		regions = DefaultTokenRegions
	}
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = defaultTokenTries
	}
	wait := s.RetryDelay
	if wait <= 0 {
		wait = defaultTokenDelay
	}
	clk := clock.Or(s.Clock)

	var last error
	for _, region := range regions {
		attempt := 0
		create := func() (token.Token, error) {
			attempt++
			log.Debug("creating NLS token", "region", region, "attempt", attempt)
			return s.create(ctx, region)
		}
		notify := func(err error, _ time.Duration) {
			log.Warn("create token failed", "region", region, "attempt", attempt, "error", err)
		}
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(wait), uint64(attempts-1)), ctx)

		tok, err := backoff.RetryNotifyWithTimerAndData(create, policy, notify, clock.NewTimer(clk))
		if err == nil {
			return tok, nil
		}
		if ctx.Err() != nil {
			return token.Token{}, ctx.Err()
		}
		log.Warn("create token failed", "region", region, "attempt", attempt, "error", err)
		last = fmt.Errorf("region %s: %w", region, err)
	}
	return token.Token{}, last
}

func (s *NLSTokenSource) create(ctx context.Context, region string) (token.Token, error) {
	endpoint := defaultMetaEndpoint
	if s.Endpoint != nil {
		endpoint = s.Endpoint
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	params := url.Values{}
	params.Set("Action", "CreateToken")
	params.Set("Version", nlsMetaAPIVersion)
	params.Set("Format", "JSON")
	params.Set("RegionId", region)
	params.Set("AccessKeyId", s.AccessKeyID)
	params.Set("SignatureMethod", "HMAC-SHA1")
	params.Set("SignatureVersion", "1.0")
	params.Set("SignatureNonce", uuid.NewString())
	params.Set("Timestamp", clock.Or(s.Clock).Now().UTC().Format("2006-01-02T15:04:05Z"))

	u := endpoint(region) + "/?" + popQuery(http.MethodGet, params, s.AccessKeySecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return token.Token{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return token.Token{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return token.Token{}, fmt.Errorf("read response: %w", err)
	}

	var r createTokenResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return token.Token{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := r.Message
		if msg == "" {
			msg = r.ErrMsg
		}
		return token.Token{}, fmt.Errorf("status %d: %s %s", resp.StatusCode, r.Code, msg)
	}
	if r.Token.ID == "" {
		return token.Token{}, errors.New("response has no token")
	}

	expires := time.Unix(r.Token.ExpireTime, 0)
	if r.Token.ExpireTime == 0 {
		expires = clock.Or(s.Clock).Now().Add(time.Hour)
	}
	return token.Token{Value: r.Token.ID, ExpiresAt: expires}, nil
}
