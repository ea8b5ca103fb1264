package authgate

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerConfig configures the optional JWT bearer tokens: /api/login
// issues one when a BearerManager is configured, and Validate verifies
// one. WebSocket upgrades do not read a token (no ?token= handling);
// they authenticate by the cookie session only.
type BearerConfig struct {
	SecretKey     string
	Issuer        string
	TokenDuration time.Duration
}

// BearerClaims is the claim set issued/validated for the bearer path.
type BearerClaims struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// BearerManager issues and validates bearer tokens with HS256, the
// same signing method and claim verification discipline as the
// teacher's JWTManager.
type BearerManager struct {
	config BearerConfig
}

func NewBearerManager(config BearerConfig) *BearerManager {
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "wsrelay"
	}
	return &BearerManager{config: config}
}

func (m *BearerManager) Issue(username string, admin bool) (string, error) {
	now := time.Now()
	claims := &BearerClaims{
		Username: username,
		Admin:    admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a bearer token, explicitly rejecting
// any signing method other than HMAC to prevent algorithm-substitution
// attacks.
func (m *BearerManager) Validate(tokenString string) (*BearerClaims, error) {
	claims := &BearerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
