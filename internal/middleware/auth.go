// Package middleware содержит HTTP middleware сервиса происхождения поставок.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const accountKey contextKey = "account"

const (
	sessionCookieName = "session_token"
	sessionCookieTTL  = 365 * 24 * time.Hour
)

// AuthMiddleware выполняет проверку сессии по подписанному cookie,
// несущему адрес подключённого аккаунта.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie сессии и добавляет адрес аккаунта в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		account, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie устанавливает cookie сессии для указанного адреса аккаунта.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, account string) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    a.signAccount(account),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

// Адрес кодируется base64, чтобы значение cookie оставалось валидным
// для любых форматов адресов.
func (a *AuthMiddleware) signAccount(account string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(account))
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(encoded))
	signature := mac.Sum(nil)
	return encoded + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (string, bool) {
	encoded, signature, found := strings.Cut(cookieValue, ".")
	if !found {
		return "", false
	}

	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(encoded))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	account, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(account) == 0 {
		return "", false
	}

	return string(account), true
}

// GetAccountFromContext извлекает адрес аккаунта из контекста запроса.
func GetAccountFromContext(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(accountKey).(string)
	return account, ok
}
