package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// KeyClass selects which secret and lifetime a token uses. Tokens of one
// class never verify under the other.
type KeyClass int

const (
	KeyAccess KeyClass = iota
	KeyRefresh
)

func (k KeyClass) tokenType() string {
	if k == KeyRefresh {
		return models.TokenTypeRefresh
	}
	return models.TokenTypeAccess
}

// TokenConfig is fixed at construction
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenManager signs and verifies HS256 JWTs
type TokenManager struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenManager(cfg TokenConfig) *TokenManager {
	return &TokenManager{cfg: cfg, now: time.Now}
}

func (tm *TokenManager) secret(class KeyClass) []byte {
	if class == KeyRefresh {
		return []byte(tm.cfg.RefreshSecret)
	}
	return []byte(tm.cfg.AccessSecret)
}

func (tm *TokenManager) ttl(class KeyClass) time.Duration {
	if class == KeyRefresh {
		return tm.cfg.RefreshTTL
	}
	return tm.cfg.AccessTTL
}

// AccessTTL is the lifetime of access tokens, used for cookie max-age
func (tm *TokenManager) AccessTTL() time.Duration { return tm.cfg.AccessTTL }

// RefreshTTL is the lifetime of refresh tokens, used for cookie max-age
func (tm *TokenManager) RefreshTTL() time.Duration { return tm.cfg.RefreshTTL }

func (tm *TokenManager) issue(class KeyClass, subject, sessionID string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("token subject cannot be empty")
	}

	now := tm.now()
	expiresAt := now.Add(tm.ttl(class))

	claims := &models.TokenClaims{
		Type:      class.tokenType(),
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			Issuer:    tm.cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret(class))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", class.tokenType(), err)
	}

	return signed, expiresAt, nil
}

// IssueAccessToken signs a short-lived access token
func (tm *TokenManager) IssueAccessToken(subject, sessionID string) (string, error) {
	token, _, err := tm.issue(KeyAccess, subject, sessionID)
	return token, err
}

// IssueRefreshToken signs a refresh token with the refresh secret
func (tm *TokenManager) IssueRefreshToken(subject, sessionID string) (string, error) {
	token, _, err := tm.issue(KeyRefresh, subject, sessionID)
	return token, err
}

// IssueTokenPair signs both tokens concurrently. Either failure fails the pair.
func (tm *TokenManager) IssueTokenPair(ctx context.Context, subject, sessionID string) (*models.TokenPair, error) {
	pair := &models.TokenPair{}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pair.AccessToken, pair.AccessExpiresAt, err = tm.issue(KeyAccess, subject, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		pair.RefreshToken, pair.RefreshExpiresAt, err = tm.issue(KeyRefresh, subject, sessionID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pair, nil
}

// Verify checks signature, expiry, issuer and type against class. Every
// failure is reported as models.ErrInvalidToken.
func (tm *TokenManager) Verify(tokenString string, class KeyClass) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret(class), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, models.ErrInvalidToken
	}

	if claims.Type != class.tokenType() {
		return nil, fmt.Errorf("%w: expected %s token, got %q", models.ErrInvalidToken, class.tokenType(), claims.Type)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", models.ErrInvalidToken)
	}

	return claims, nil
}

// Authenticate maps an access token to the principal it names. It has no
// side effects and performs no I/O.
func (tm *TokenManager) Authenticate(bearer string) (*models.Principal, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, fmt.Errorf("%w: empty token", models.ErrInvalidToken)
	}

	claims, err := tm.Verify(bearer, KeyAccess)
	if err != nil {
		return nil, err
	}

	return &models.Principal{Subject: claims.Subject, SessionID: claims.SessionID}, nil
}

// IsExpiredTokenError reports whether err came from an expired token
func IsExpiredTokenError(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
