package nonce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSigner(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	s := NewSigner("secret", time.Hour)
	s.now = func() time.Time { return now }

	token := s.Create("replace_media_file", 7)

	tests := []struct {
		name   string
		signer *Signer
		action string
		id     int64
		token  string
		after  time.Duration
		valid  bool
	}{
		{name: "valid", signer: s, action: "replace_media_file", id: 7, token: token, valid: true},
		{name: "next window", signer: s, action: "replace_media_file", id: 7, token: token, after: time.Hour, valid: true},
		{name: "expired", signer: s, action: "replace_media_file", id: 7, token: token, after: 2 * time.Hour},
		{name: "other record", signer: s, action: "replace_media_file", id: 8, token: token},
		{name: "other action", signer: s, action: "delete_media", id: 7, token: token},
		{name: "empty", signer: s, action: "replace_media_file", id: 7, token: ""},
		{name: "other key", signer: NewSigner("other", time.Hour), action: "replace_media_file", id: 7, token: token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.signer.now = func() time.Time { return now.Add(tt.after) }
			assert.Equal(t, tt.valid, tt.signer.Verify(tt.action, tt.id, tt.token))
		})
	}
}
