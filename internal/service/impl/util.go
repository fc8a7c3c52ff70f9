package impl

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"authority/internal/domain"
	"authority/internal/netutil"

	"github.com/google/uuid"
)

func errorsIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func parseUserID(s string) (domain.UserID, error) {
	return uuid.Parse(s)
}

// newOpaqueID returns 32 random bytes, base64url encoded.
func newOpaqueID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeIP(ip string) string {
	if normalized, ok := netutil.NormalizeIP(ip); ok {
		return normalized
	}
	return strings.TrimSpace(ip)
}
