// Package userinfo fetches the userinfo of the signed-in user from the identity provider.
package userinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
)

const defaultStaleTime = 5 * time.Minute

// EndpointSource resolves the userinfo endpoint of the provider.
type EndpointSource interface {
	UserinfoEndpoint(ctx context.Context) (string, error)
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// Client proxies the userinfo endpoint. Responses are cached per subject
// for the stale time.
type Client struct {
	endpoints  EndpointSource
	httpClient *http.Client
	cache      *cache.Cache
}

func NewClient(endpoints EndpointSource, staleTime time.Duration, opts ...Option) *Client {
	if staleTime <= 0 {
		staleTime = defaultStaleTime
	}

	c := &Client{
		endpoints:  endpoints,
		httpClient: http.DefaultClient,
		cache:      cache.New(staleTime, 2*staleTime),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Get returns the userinfo of user, fetching it with the access token when
// the cached copy is stale.
func (c *Client) Get(ctx context.Context, user *session.User) (*oidc.UserInfo, error) {
	if user == nil || user.AccessToken == "" {
		return nil, serviceerr.ErrUnauthenticated
	}

	subject := user.Profile.Subject
	if v, ok := c.cache.Get(subject); ok {
		//nolint:forcetypeassert
		return v.(*oidc.UserInfo), nil
	}

	endpoint, err := c.endpoints.UserinfoEndpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving the userinfo endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating a new HTTP request: %w", err)
	}
	req.Header.Set("Authorization", oidc.BearerToken+" "+user.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing an http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, serviceerr.New(serviceerr.CodeUnauthenticated, "the provider rejected the access token")
	default:
		return nil, fmt.Errorf("unexpected status code %d from the userinfo endpoint", resp.StatusCode)
	}

	info := new(oidc.UserInfo)
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}

	if info.Subject != subject {
		slogctx.Warn(ctx, "The userinfo belongs to another subject", "user", user)
		return nil, serviceerr.New(serviceerr.CodeInvalidIDToken, "userinfo subject mismatch")
	}

	c.cache.SetDefault(subject, info)

	return info, nil
}

// Forget drops the cached userinfo of the subject.
func (c *Client) Forget(subject string) {
	c.cache.Delete(subject)
}
