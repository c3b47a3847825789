package usecases

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthUsecase issues admin API tokens. There is a single admin identity whose
// bcrypt hash comes from ADMIN_PASSWORD_HASH.
type AuthUsecase struct {
	passwordHash []byte
	jwtSecret    []byte
	ttl          time.Duration
	now          func() time.Time
}

func NewAuthUsecase(passwordHash, secret string) *AuthUsecase {
	return &AuthUsecase{
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(secret),
		ttl:          24 * time.Hour,
		now:          time.Now,
	}
}

func (uc *AuthUsecase) Enabled() bool {
	return len(uc.passwordHash) > 0 && len(uc.jwtSecret) > 0
}

func (uc *AuthUsecase) Login(password string) (string, error) {
	if !uc.Enabled() {
		return "", ErrAuthDisabled
	}
	if err := bcrypt.CompareHashAndPassword(uc.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin",
		"role": "admin",
		"iat":  uc.now().Unix(),
		"exp":  uc.now().Add(uc.ttl).Unix(),
	})
	signed, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// HashPassword is used by the hash-password CLI command.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
