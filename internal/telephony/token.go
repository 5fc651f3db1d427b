package telephony

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"callfeedback/internal/logger"
)

// refreshWindow is how close to expiry a cached token may get before a new
// one is requested.
const refreshWindow = 60 * time.Second

const tokenRequestTimeout = 10 * time.Second

// TokenProvider hands out bearer tokens for the phone system API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	// AccountID switches the grant to account_credentials when set.
	AccountID  string
	HTTPClient *http.Client
}

// ClientCredentials caches one token in memory and refreshes it once it is
// within refreshWindow of expiry. Concurrent callers share the cached token
// and at most one exchange runs at a time.
type ClientCredentials struct {
	cfg    *clientcredentials.Config
	client *http.Client

	mu  sync.Mutex
	tok *oauth2.Token
}

func NewClientCredentials(cfg OAuthConfig) *ClientCredentials {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: tokenRequestTimeout}
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if cfg.AccountID != "" {
		cc.EndpointParams = url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountID},
		}
	}
	return &ClientCredentials{cfg: cc, client: client}
}

// Token returns the cached access token, exchanging credentials first when
// the cache is empty or about to expire. ctx bounds the exchange.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	tok, err := oauth2.ReuseTokenSourceWithExpiry(c.tok, c.cfg.TokenSource(ctx), refreshWindow).Token()
	if err != nil {
		return "", fmt.Errorf("client credentials exchange: %w", err)
	}
	if tok != c.tok {
		logger.Component("telephony").WithField("expires_at", tok.Expiry.Format(time.RFC3339)).Debug("fetched phone api token")
		c.tok = tok
	}
	return tok.AccessToken, nil
}
