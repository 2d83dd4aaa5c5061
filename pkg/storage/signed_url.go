package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned for malformed or tampered tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrExpiredToken is returned when a valid token is past its expiry.
	ErrExpiredToken = errors.New("download token expired")
)

// Ticket is the payload carried by a signed download token.
type Ticket struct {
	ExportID  string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates signed download tokens of the form
// id.expiry.base64(path).hmac.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns how long issued tokens stay valid.
func (s *SignedURLSigner) TTL() time.Duration {
	return s.ttl
}

// Sign issues a token for one stored export file.
func (s *SignedURLSigner) Sign(exportID, relPath string) (string, Ticket, error) {
	if exportID == "" || relPath == "" {
		return "", Ticket{}, fmt.Errorf("export id and path required")
	}
	if strings.Contains(exportID, ".") {
		return "", Ticket{}, fmt.Errorf("export id must not contain dots")
	}
	if len(s.secret) == 0 {
		return "", Ticket{}, fmt.Errorf("signing secret missing")
	}
	ticket := Ticket{ExportID: exportID, Path: relPath, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	expiry := strconv.FormatInt(ticket.ExpiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{exportID, expiry, encodedPath, s.sign(exportID, expiry, encodedPath)}, ".")
	return token, ticket, nil
}

// Verify validates a token and returns its ticket. Expired tokens report
// ErrExpiredToken together with the decoded ticket.
func (s *SignedURLSigner) Verify(token string) (Ticket, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Ticket{}, ErrInvalidToken
	}
	exportID, expiry, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]
	if !hmac.Equal([]byte(s.sign(exportID, expiry, encodedPath)), []byte(signature)) {
		return Ticket{}, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return Ticket{}, ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return Ticket{}, ErrInvalidToken
	}
	ticket := Ticket{ExportID: exportID, Path: string(rawPath), ExpiresAt: time.Unix(unix, 0)}
	if s.now().After(ticket.ExpiresAt) {
		return ticket, ErrExpiredToken
	}
	return ticket, nil
}

func (s *SignedURLSigner) sign(exportID, expiry, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(exportID + "|" + expiry + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
