// Package auth выпускает и разбирает JWT владельцев бизнеса и превращает их
// в контекст авторизации, которому доверяет ядро.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/apperror"
)

const (
	RoleOwner = "owner"

	audience = "appointment-booking"
)

var ErrInvalidToken = errors.New("invalid token")

// Context: кто выполняет действие. Клиенты без аккаунта сюда не попадают,
// они приходят с временным токеном.
type Context struct {
	UserID          uuid.UUID
	BusinessID      uuid.UUID
	IsBusinessOwner bool
}

// Owns: владелец именно этого бизнеса.
func (c *Context) Owns(businessID uuid.UUID) bool {
	return c != nil && c.IsBusinessOwner && c.BusinessID == businessID
}

type Claims struct {
	UserID     string `json:"uid"`
	BusinessID string `json:"bid"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue подписывает токен владельца бизнеса (HS256).
func (m *Manager) Issue(userID, businessID uuid.UUID, role string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:     userID.String(),
		BusinessID: businessID.String(),
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Audience:  []string{audience},
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse проверяет подпись и срок и возвращает контекст авторизации.
func (m *Manager) Parse(token string) (*Context, error) {
	tok, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	ac := &Context{UserID: userID}
	if claims.Role == RoleOwner {
		businessID, err := uuid.Parse(claims.BusinessID)
		if err != nil {
			return nil, ErrInvalidToken
		}
		ac.BusinessID = businessID
		ac.IsBusinessOwner = true
	}
	return ac, nil
}

type ctxKey struct{}

func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(ctxKey{}).(*Context)
	return ac, ok && ac != nil
}

// RequireOwner: нет контекста: ErrUnauthorized, чужой бизнес: ErrForbidden.
func RequireOwner(ac *Context, businessID uuid.UUID) error {
	if ac == nil {
		return apperror.ErrUnauthorized
	}
	if !ac.Owns(businessID) {
		return apperror.ErrForbidden
	}
	return nil
}
