package dining

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
)

// Channel names the pub/sub topic of one identity's notification stream.
type Channel string

func (c Channel) String() string {
	return string(c)
}

// Validate reports whether c is a channel ChannelFor can produce.
func (c Channel) Validate() error {
	s := string(c)
	for _, kind := range []IdentityKind{KindUser, KindRestaurant} {
		prefix := "dineon_" + string(kind) + "_"
		id, ok := strings.CutPrefix(s, prefix)
		if !ok || id == "" {
			continue
		}
		if raw, err := unescapeID(id); err == nil && raw != "" && escapeID(raw) == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not a dining channel", ErrInvalidArgument, s)
}

// IdentityKind distinguishes the two sides of a dining session.
type IdentityKind string

const (
	KindUser       IdentityKind = "user"
	KindRestaurant IdentityKind = "restaurant"
)

// Identity is anything a channel can be derived from.
type Identity interface {
	IdentityKind() IdentityKind
	IdentityID() string
}

// ChannelFor derives the channel of an identity. The result is stable for a
// given (kind, id) pair, only contains [A-Za-z0-9_-], and distinct ids always
// give distinct channels: '_' and every byte outside [A-Za-z0-9-] are written
// as '_' plus two lowercase hex digits.
func ChannelFor(id Identity) (Channel, error) {
	if isNilIdentity(id) {
		return "", fmt.Errorf("%w: identity is nil", ErrInvalidArgument)
	}
	kind := id.IdentityKind()
	objectID := id.IdentityID()
	if kind != KindUser && kind != KindRestaurant {
		return "", fmt.Errorf("%w: unknown identity kind %q", ErrInvalidArgument, kind)
	}
	if objectID == "" {
		return "", fmt.Errorf("%w: identity has no object id", ErrInvalidArgument)
	}
	return Channel("dineon_" + string(kind) + "_" + escapeID(objectID)), nil
}

func plainByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-'
}

func escapeID(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if plainByte(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('_')
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}

func unescapeID(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			sb.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape at %d", i)
		}
		decoded, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return "", fmt.Errorf("bad escape at %d: %w", i, err)
		}
		sb.Write(decoded)
		i += 2
	}
	return sb.String(), nil
}

// isNilIdentity catches both a nil interface and a typed nil pointer
// (e.g. a (*UserInfo)(nil) passed as Identity).
func isNilIdentity(id Identity) bool {
	if id == nil {
		return true
	}
	v := reflect.ValueOf(id)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
