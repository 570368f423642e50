package signedlink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer issues and validates expiring tokens that grant read access to a
// single (user, semester) registration card without a session.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token scoped to userID and semesterID.
func (s *Signer) Generate(userID, semesterID string) (string, time.Time, error) {
	if userID == "" || semesterID == "" {
		return "", time.Time{}, fmt.Errorf("userID and semesterID required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	subject := base64.RawURLEncoding.EncodeToString([]byte(userID + "|" + semesterID))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	return subject + "." + ts + "." + s.sign(subject, ts), expiresAt, nil
}

// Parse validates token and returns the scope it grants.
func (s *Signer) Parse(token string) (userID, semesterID string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	subject, ts, signature := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(s.sign(subject, ts)), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	raw, err := base64.RawURLEncoding.DecodeString(subject)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode subject: %w", err)
	}
	ids := strings.SplitN(string(raw), "|", 2)
	if len(ids) != 2 || ids[0] == "" || ids[1] == "" {
		return "", "", time.Time{}, fmt.Errorf("invalid token subject")
	}
	return ids[0], ids[1], expiresAt, nil
}

func (s *Signer) sign(subject, ts string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subject + "|" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
