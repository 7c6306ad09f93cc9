// Package signature authenticates inbound submissions with keyed hashes.
//
// A submission is signed over a canonical byte string rebuilt from its
// logical fields, never from the wire bytes, so a JSON body and a
// base64-wrapped upload of the same submission verify against the same tag.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pokearena/scoresync/internal/domain/model"
)

// delimiter joins canonical fields. It is stripped from free-text fields
// before hashing so a crafted display name cannot shift field boundaries.
const delimiter = "|"

// Secret format policy for self-registering devices.
const (
	minSecretLen = 16
	maxSecretLen = 64
)

// Canonical returns the fixed-order canonical string for a submission:
// identity, marker, mode, rounds, kos, trainers, extra, player, team.
func Canonical(s model.Submission) string {
	fields := []string{
		s.Identity(),
		strconv.FormatInt(s.Marker, 10),
		string(s.Mode),
		strconv.FormatInt(s.Rounds, 10),
		strconv.FormatInt(s.KOs, 10),
		strconv.FormatInt(s.Trainers, 10),
		strconv.FormatInt(s.Extra, 10),
		normalize(s.Player),
		normalize(s.Team),
	}
	return strings.Join(fields, delimiter)
}

// Tag computes the hex HMAC-SHA256 tag for a submission under secret.
func Tag(secret string, s model.Submission) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(Canonical(s)))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the tag and compares it to the submitted one in
// constant time. Returns ErrBadSignature on mismatch or empty tag.
func Verify(secret string, s model.Submission) error {
	if s.Tag == "" {
		return ErrBadSignature
	}
	want := Tag(secret, s)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(s.Tag))) {
		return ErrBadSignature
	}
	return nil
}

// VerifyToken compares a caller-supplied shared token in constant time.
// Used by the name scheme and the administrative reset endpoint.
func VerifyToken(got, want string) error {
	if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrBadToken
	}
	return nil
}

// ValidSecret reports whether a self-registration secret candidate matches
// the format policy: 16..64 characters from [A-Za-z0-9_-].
func ValidSecret(candidate string) bool {
	if len(candidate) < minSecretLen || len(candidate) > maxSecretLen {
		return false
	}
	for _, r := range candidate {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// normalize strips delimiter bytes from a free-text field.
func normalize(s string) string {
	return strings.ReplaceAll(s, delimiter, "")
}
