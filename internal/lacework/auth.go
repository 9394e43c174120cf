package lacework

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/transport"
)

const (
	tokenPath        = "/api/v2/access/tokens"
	defaultTokenLife = time.Hour
	tokenRefreshSkew = time.Minute
	secretHeader     = "X-LW-UAKS"
	subaccountHeader = "Account-Name"
)

// TokenSource exchanges an API key for short-lived bearer tokens and
// reuses a token until shortly before it expires.
type TokenSource struct {
	tr     transport.Transport
	keyID  string
	secret string
	life   time.Duration
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

var _ transport.Authenticator = (*TokenSource)(nil)

// NewTokenSource creates a token source. tr must not itself authenticate.
func NewTokenSource(tr transport.Transport, keyID, secret string) *TokenSource {
	return &TokenSource{
		tr:     tr,
		keyID:  keyID,
		secret: secret,
		life:   defaultTokenLife,
		now:    time.Now,
	}
}

type tokenRequest struct {
	KeyID      string `json:"keyId"`
	ExpiryTime int    `json:"expiryTime"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// Token returns a valid bearer token.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Add(tokenRefreshSkew).Before(s.expiresAt) {
		return s.token, nil
	}
	if s.keyID == "" || s.secret == "" {
		return "", errors.LaceworkCredentialsError(nil)
	}

	body, err := json.Marshal(tokenRequest{KeyID: s.keyID, ExpiryTime: int(s.life.Seconds())})
	if err != nil {
		return "", err
	}

	resp, err := s.tr.Execute(ctx, &transport.Request{
		Method:    http.MethodPost,
		Path:      tokenPath,
		Body:      body,
		Header:    map[string]string{secretHeader: s.secret},
		Operation: "access token",
	})
	if err != nil {
		var lwErr *errors.LWError
		if stderrors.As(err, &lwErr) && (lwErr.StatusCode == http.StatusUnauthorized || lwErr.StatusCode == http.StatusForbidden) {
			return "", errors.LaceworkCredentialsError(err)
		}
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode access token: %w", err)
	}
	if tr.Token == "" {
		return "", errors.LaceworkCredentialsError(fmt.Errorf("empty access token"))
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, tr.ExpiresAt)
	if err != nil {
		expiresAt = s.now().Add(s.life)
	}
	s.token = tr.Token
	s.expiresAt = expiresAt
	return s.token, nil
}
