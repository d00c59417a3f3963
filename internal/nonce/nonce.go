// Package nonce issues and checks anti-forgery tokens bound to an action
// and a record.
package nonce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Signer creates HMAC tokens that stay valid for two consecutive windows.
type Signer struct {
	key    []byte
	window time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. A token issued at any point of a window is
// accepted until the end of the following one.
func NewSigner(key string, window time.Duration) *Signer {
	if window <= 0 {
		window = 12 * time.Hour
	}
	return &Signer{
		key:    []byte(key),
		window: window,
		now:    time.Now,
	}
}

// Create returns the token for action on record id.
func (s *Signer) Create(action string, id int64) string {
	return s.sign(action, id, s.tick())
}

// Verify checks token against the current and the previous window.
func (s *Signer) Verify(action string, id int64, token string) bool {
	if token == "" {
		return false
	}
	tick := s.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(token), []byte(s.sign(action, id, t))) {
			return true
		}
	}
	return false
}

func (s *Signer) tick() int64 {
	return s.now().UnixNano() / int64(s.window)
}

func (s *Signer) sign(action string, id int64, tick int64) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(id, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(tick, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
