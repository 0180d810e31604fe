package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxPeerIDLength bounds peer ids so a channel name stays short.
const MaxPeerIDLength = 64

// PeerIDRegex is the peer id alphabet. A dot would split the channel name.
var PeerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidatePeerID checks an id is usable as the suffix of peer.<id>.
func ValidatePeerID(peerID string) error {
	switch {
	case peerID == "":
		return fmt.Errorf("peer id is required")
	case len(peerID) > MaxPeerIDLength:
		return fmt.Errorf("peer id is too long (max %d characters)", MaxPeerIDLength)
	case !PeerIDRegex.MatchString(peerID):
		return fmt.Errorf("peer id %q may only contain letters, digits, '-' and '_'", peerID)
	}
	return nil
}

// ValidateEmail accepts a bare address, no display name.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return fmt.Errorf("invalid email %q", email)
	}
	return nil
}

// ValidateMessageBody trims the body and checks it is non-empty, valid
// UTF-8 and at most maxRunes long (0 means unbounded). It returns the
// trimmed body.
func ValidateMessageBody(body string, maxRunes int) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("message body is required")
	}
	if !utf8.ValidString(body) {
		return "", fmt.Errorf("message body is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(body); maxRunes > 0 && n > maxRunes {
		return "", fmt.Errorf("message body is too long (%d > %d characters)", n, maxRunes)
	}
	return body, nil
}
