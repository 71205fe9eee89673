package service

import (
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// VerifyStartPrefix es el prefijo del payload de /start que trae un token.
const VerifyStartPrefix = "verify_"

const verifyTokenBytes = 16

func newVerifyToken() (string, error) {
	b := make([]byte, verifyTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func digestToken(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func isWellFormedToken(raw string) bool {
	if len(raw) != verifyTokenBytes*2 {
		return false
	}
	for _, r := range raw {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'f') {
			return false
		}
	}
	return true
}

// TokenFromStartPayload extrae el token de un payload "verify_<token>".
func TokenFromStartPayload(payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, VerifyStartPrefix) {
		return "", false
	}
	token := strings.TrimPrefix(payload, VerifyStartPrefix)
	if token == "" {
		return "", false
	}
	return token, true
}

// CallbackLinks arma la URL a la que vuelve el usuario tras completar el shortlink.
type CallbackLinks struct {
	BotUsername   string
	PublicBaseURL string
}

// URL usa el endpoint web si hay PublicBaseURL; si no, un deep link de Telegram.
func (l CallbackLinks) URL(token string) string {
	if base := strings.TrimRight(strings.TrimSpace(l.PublicBaseURL), "/"); base != "" {
		return base + "/verify/" + url.PathEscape(token)
	}
	return "https://t.me/" + strings.TrimPrefix(l.BotUsername, "@") + "?start=" + VerifyStartPrefix + token
}
