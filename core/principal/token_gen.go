package principal

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Password reset tokens are HMAC-signed, time-boxed and bound to the
// principal's current password hash and last login. Changing the password or
// logging in invalidates any outstanding token, so no server-side state is
// needed.

var (
	salt = []byte("shule.core.principal.token_gen")

	// errors
	errInvalidResetToken = errors.New("invalid token")
	errResetTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes a Principal ID for use in reset links.
func EncodeUID(p Principal) string {
	return base64.RawURLEncoding.EncodeToString([]byte(p.ID))
}

// decodeUID base64 decodes a UID back to a Principal ID.
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// MakeResetToken generates a password reset token for a given Principal.
func MakeResetToken(p Principal, secret []byte) string {
	return makeTokenWithTimestamp(p, numDaysSince2001(nowFunc()), secret)
}

// verifyResetToken checks that a password reset token for a given Principal
// is genuine and has not timed out.
func verifyResetToken(p Principal, token string, secret []byte, timeout time.Duration) error {
	if token == "" {
		return errInvalidResetToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidResetToken
	}
	tsB32 := parts[0]

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(tsB32)
	if err != nil {
		return errInvalidResetToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidResetToken
	}

	// check that token has not been tampered with
	newToken := makeTokenWithTimestamp(p, ts, secret)
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidResetToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(time.Now()) - ts) > int(timeout/(24*time.Hour)) {
		return errResetTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(p Principal, ts int, secret []byte) string {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, sign(hashValue(p, ts), secret))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val, secret []byte) string {
	key := sha256.Sum256(append(salt, secret...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hashValue(p Principal, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(p.ID)
	val.Write(p.PasswordHash)
	if p.LastLogin.Valid {
		val.WriteString(p.LastLogin.Time.String())
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
