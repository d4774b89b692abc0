package devtoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Params captures the claims required to mint a signed token for local and CI environments.
// No environment variables are read so the builder stays deterministic for tooling.
type Params struct {
	UserID    string        // sub/user_id (required)
	Email     string        // email claim (required)
	Name      string        // display name (optional)
	Role      string        // SUPER_ADMIN | ADMIN | TEACHER | STUDENT | PARENT (required)
	SchoolID  string        // school_id claim; empty only for SUPER_ADMIN
	ExpiresIn time.Duration // relative expiry; default 1h if zero
	Issuer    string        // optional; defaults to "schoolhub-dev"
}

// BuildSignedToken returns an HS256 JWT the api's auth middleware accepts when configured with the same secret.
func BuildSignedToken(p Params, secret []byte, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is required")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}

	role := strings.ToUpper(strings.TrimSpace(p.Role))
	if role == "" {
		return "", errors.New("role is required")
	}
	if role != "SUPER_ADMIN" && strings.TrimSpace(p.SchoolID) == "" {
		return "", errors.New("schoolID is required for school-scoped roles")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = "schoolhub-dev"
	}

	claims := jwt.MapClaims{
		"iss":     issuer,
		"sub":     p.UserID,
		"user_id": p.UserID,
		"iat":     now.Unix(),
		"exp":     now.Add(expiresIn).Unix(),
		"email":   p.Email,
		"role":    role,
	}
	if p.Name != "" {
		claims["name"] = p.Name
	}
	if p.SchoolID != "" {
		claims["school_id"] = p.SchoolID
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
