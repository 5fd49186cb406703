// Package googleauth mints short-lived Google API access tokens from a
// service-account key pair using the JWT-bearer assertion grant.
//
// The flow is deliberately implemented by hand (crypto/rsa + net/http)
// rather than through an OAuth client library: bugle needs exactly one
// grant type, one signing algorithm, and no token cache. A fresh token is
// minted per scheduled run and shared read-only by that run's requests.
package googleauth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTokenURL is Google's OAuth 2.0 token endpoint. It doubles as
	// the assertion audience.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	// grantType is the JWT-bearer grant URN (RFC 7523).
	grantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// tokenTTL is the fixed assertion lifetime. Google caps service-account
	// assertions at one hour; bugle runs never outlive that.
	tokenTTL = time.Hour
)

// DefaultScopes covers everything the digest tasks touch: posting messages
// and looking up space members.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/chat.messages.create",
	"https://www.googleapis.com/auth/chat.messages",
	"https://www.googleapis.com/auth/chat.memberships",
}

// Credential is a service-account identity: the account email and its
// PEM-encoded RSA private key (PKCS#8 or PKCS#1).
type Credential struct {
	Email      string
	PrivateKey string
}

// Minter builds, signs, and exchanges JWT-bearer assertions for access
// tokens. It holds no mutable state and is safe for concurrent use.
type Minter struct {
	cred     Credential
	scopes   []string
	tokenURL string
	http     *http.Client
	now      func() time.Time
}

type Option func(*Minter)

// WithTokenURL overrides the token endpoint (and assertion audience).
func WithTokenURL(u string) Option {
	return func(m *Minter) {
		if strings.TrimSpace(u) != "" {
			m.tokenURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Minter) {
		if c != nil {
			m.http = c
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Minter) {
		if now != nil {
			m.now = now
		}
	}
}

func New(cred Credential, scopes []string, opts ...Option) *Minter {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	m := &Minter{
		cred:     cred,
		scopes:   scopes,
		tokenURL: DefaultTokenURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type jwtClaims struct {
	Iss   string `json:"iss"`
	Scope string `json:"scope"`
	Aud   string `json:"aud"`
	Exp   int64  `json:"exp"`
	Iat   int64  `json:"iat"`
}

// Mint signs a fresh assertion and exchanges it for a bearer access token.
// A failure at any step returns an error and no token; callers must abort
// dependent work rather than proceed with an empty token. One attempt, no
// retry, nothing cached.
func (m *Minter) Mint(ctx context.Context) (string, error) {
	assertion, err := m.assertion()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("googleauth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("googleauth: token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("googleauth: token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("googleauth: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("googleauth: token response has no access_token")
	}
	return tok.AccessToken, nil
}

// assertion builds the signed JWT: base64url(header).base64url(claims)
// signed with RSASSA-PKCS1-v1_5 over SHA-256 (RS256).
func (m *Minter) assertion() (string, error) {
	key, err := parsePrivateKey(m.cred.PrivateKey)
	if err != nil {
		return "", err
	}

	iat := m.now().Unix()
	header, err := json.Marshal(jwtHeader{Alg: "RS256", Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("googleauth: marshal header: %w", err)
	}
	claims, err := json.Marshal(jwtClaims{
		Iss:   m.cred.Email,
		Scope: strings.Join(m.scopes, " "),
		Aud:   m.tokenURL,
		Exp:   iat + int64(tokenTTL.Seconds()),
		Iat:   iat,
	})
	if err != nil {
		return "", fmt.Errorf("googleauth: marshal claims: %w", err)
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(header) + "." + enc.EncodeToString(claims)

	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("googleauth: sign assertion: %w", err)
	}

	return signingInput + "." + enc.EncodeToString(sig), nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("googleauth: private key is not PEM")
	}
	// Service-account keys ship as PKCS#8; accept PKCS#1 as well.
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("googleauth: private key is not RSA")
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("googleauth: parse private key: %w", err)
	}
	return key, nil
}
