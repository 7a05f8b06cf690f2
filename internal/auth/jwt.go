package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
)

var (
	// ErrInvalidToken covers every reason a token is refused.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownKey means the token names a kid the manager does not hold.
	ErrUnknownKey = errors.New("unknown signing key")
)

// JWTManager signs and validates the bearer tokens used by the REST API and
// the live socket. It holds a set of HMAC keys indexed by kid: new tokens are
// signed with the active key, and any key still in the set verifies.
type JWTManager struct {
	keys      map[string][]byte // kid -> secret
	activeKID string            // kid written into new tokens
	duration  time.Duration     // token lifetime
}

// Claims is the token payload: who the user is.
type Claims struct {
	UserID string `json:"user_id"` // hex ObjectID
	Email  string `json:"email"`   // normalized email
	jwt.RegisteredClaims
}

// NewJWTManager returns a manager with a single unnamed key.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return NewJWTManagerFromKeys(map[string]string{"": secretKey}, "", duration)
}

// NewJWTManagerFromKeys returns a manager that signs with keys[activeKID] and
// verifies with whichever key the token's kid header names. Rotating a key is
// adding the new one, switching activeKID, and dropping the old one once its
// tokens have expired.
func NewJWTManagerFromKeys(keys map[string]string, activeKID string, duration time.Duration) *JWTManager {
	m := &JWTManager{
		keys:      make(map[string][]byte, len(keys)),
		activeKID: activeKID,
		duration:  duration,
	}
	for kid, secret := range keys {
		m.keys[kid] = []byte(secret)
	}
	return m
}

// ParseKeys reads a "kid1:secret1,kid2:secret2" list. Entries without a
// colon are rejected.
func ParseKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kid, secret, ok := strings.Cut(part, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("auth: malformed key entry %q", part)
		}
		keys[kid] = secret
	}
	if len(keys) == 0 {
		return nil, errors.New("auth: no keys")
	}
	return keys, nil
}

// GenerateToken issues a signed token for a user.
func (m *JWTManager) GenerateToken(userID bson.ObjectID, email string) (string, time.Time, error) {
	secret, ok := m.keys[m.activeKID]
	if !ok || len(secret) == 0 {
		return "", time.Time{}, ErrUnknownKey
	}

	now := time.Now()
	expiresAt := now.Add(m.duration)
	claims := &Claims{
		UserID: userID.Hex(),
		Email:  normalize.Email(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.Hex(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKID != "" {
		token.Header["kid"] = m.activeKID
	}

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Only HMAC; an asymmetric alg here would be a downgrade attempt.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		secret, ok := m.keys[kid]
		if !ok {
			return nil, ErrUnknownKey
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HashPassword returns a bcrypt hash for the provided plaintext.
func HashPassword(password string) (string, error) {
	// bcrypt.DefaultCost is 10 rounds
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
