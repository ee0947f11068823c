package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Principal is the authenticated caller of a guarded route.
type Principal struct {
	Subject     string
	Permissions []string
}

func (p *Principal) HasPermission(permission string) bool {
	return slices.Contains(p.Permissions, permission)
}

type Config struct {
	JWKSUrl      string
	Issuer       string
	Audience     string
	JWKSCacheTTL int
}

type cachedJWKS struct {
	set       jwk.Set
	expiresAt time.Time
}

// JWKSClient fetches the signing keys and caches them for a TTL. A failed
// refresh falls back to the previous set when there is one.
type JWKSClient struct {
	url        string
	cache      *cachedJWKS
	cacheTTL   time.Duration
	mu         sync.RWMutex
	httpClient *http.Client
}

func NewJWKSClient(url string, cacheTTLSeconds int) *JWKSClient {
	ttl := time.Duration(cacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &JWKSClient{
		url:        url,
		cacheTTL:   ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *JWKSClient) KeySet(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	if c.cache != nil && time.Now().Before(c.cache.expiresAt) {
		set := c.cache.set
		c.mu.RUnlock()
		return set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil && time.Now().Before(c.cache.expiresAt) {
		return c.cache.set, nil
	}

	set, err := c.fetch(ctx)
	if err != nil {
		if c.cache != nil {
			return c.cache.set, nil
		}
		return nil, err
	}

	c.cache = &cachedJWKS{
		set:       set,
		expiresAt: time.Now().Add(c.cacheTTL),
	}
	return set, nil
}

func (c *JWKSClient) fetch(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	set, err := jwk.ParseReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return set, nil
}

type Verifier struct {
	keys   *JWKSClient
	config Config
}

func NewVerifier(keys *JWKSClient, config Config) *Verifier {
	return &Verifier{keys: keys, config: config}
}

type claims struct {
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithExpirationRequired(),
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token missing kid in header")
		}

		keySet, err := v.keys.KeySet(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get JWKS: %w", err)
		}

		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key not found for kid: %s", kid)
		}

		var publicKey interface{}
		if err := key.Raw(&publicKey); err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	if c.Subject == "" {
		return nil, errors.New("token missing sub claim")
	}

	return &Principal{
		Subject:     c.Subject,
		Permissions: c.Permissions,
	}, nil
}
