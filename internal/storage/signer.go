package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature     = errors.New("storage: bad signature")
	ErrSignatureExpired = errors.New("storage: signature expired")
)

// Signer issues and verifies time-limited HMAC tokens for blob reads.
// Signing is a read-time derivation: an expired URL is re-derived from the
// stored object path without touching job state.
type Signer struct {
	secret []byte
	prefix string

	now func() time.Time
}

// NewSigner creates a signer. prefix is the public route serving blobs,
// e.g. "/v1/blobs".
func NewSigner(secret, prefix string) *Signer {
	return &Signer{
		secret: []byte(secret),
		prefix: strings.TrimRight(prefix, "/"),
		now:    time.Now,
	}
}

// Sign returns a relative signed URL for the object path, valid for ttl.
func (s *Signer) Sign(objectPath string, ttl time.Duration) string {
	cleanKey, err := sanitizeKey(objectPath)
	if err != nil {
		return ""
	}
	exp := s.now().Add(ttl).Unix()
	sig := s.token(cleanKey, exp)
	return fmt.Sprintf("%s/%s?exp=%d&sig=%s", s.prefix, cleanKey, exp, sig)
}

// Verify checks the expiry and signature presented for an object path.
func (s *Signer) Verify(objectPath string, query url.Values) error {
	cleanKey, err := sanitizeKey(objectPath)
	if err != nil {
		return ErrBadSignature
	}
	exp, err := strconv.ParseInt(query.Get("exp"), 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	expected := s.token(cleanKey, exp)
	if !hmac.Equal([]byte(expected), []byte(query.Get("sig"))) {
		return ErrBadSignature
	}
	if s.now().Unix() > exp {
		return ErrSignatureExpired
	}
	return nil
}

func (s *Signer) token(cleanKey string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d", cleanKey, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
