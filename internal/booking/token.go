package booking

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/Leganyst/appointment-booking/internal/model"
)

const tokenBytes = 32

// newRawToken: 256 бит из crypto/rand в base64url.
func newRawToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken: то, что лежит в БД вместо токена.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// issueToken создаёт токен записи; вызывать внутри транзакции.
func (s *Service) issueToken(ctx context.Context, appt *model.Appointment, now time.Time) (string, error) {
	raw, err := newRawToken()
	if err != nil {
		return "", err
	}
	tok := &model.TemporaryToken{
		TokenHash:     HashToken(raw),
		AppointmentID: appt.ID,
		ClientEmail:   appt.ClientEmail,
		ExpiresAt:     now.Add(s.tokenTTL).UTC(),
	}
	if err := s.tokens.Create(ctx, tok); err != nil {
		return "", err
	}
	return raw, nil
}

// tokenValid: все проверки токена разом; причина наружу не отдаётся.
func tokenValid(tok *model.TemporaryToken, appt *model.Appointment, now time.Time) bool {
	if tok == nil {
		return false
	}
	ok := tok.AppointmentID == appt.ID
	ok = !tok.Used && ok
	ok = tok.ExpiresAt.After(now) && ok
	ok = strings.EqualFold(tok.ClientEmail, appt.ClientEmail) && ok
	return ok
}
