// Package convid derives the identifiers shared by both sides of a
// two-party relationship.
package convid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Separator joins the two participant ids of a key.
const Separator = "_"

var ErrInvalidIdentifier = errors.New("invalid identifier")

// Key returns the canonical conversation key for two users. Ids are compared
// as integers, smaller first, so Key(a, b) == Key(b, a).
func Key(a, b string) (string, error) {
	na, err := parse(a)
	if err != nil {
		return "", err
	}
	nb, err := parse(b)
	if err != nil {
		return "", err
	}
	// equal values spelled differently ("05", "5") fall back to string order
	if nb < na || (na == nb && b < a) {
		a, b = b, a
	}
	return a + Separator + b, nil
}

// RequestKey is the ordered key of a friend request or friendship record.
func RequestKey(senderID, receiverID string) string {
	return senderID + Separator + receiverID
}

// Participants splits a key into its two ids.
func Participants(key string) (string, string, error) {
	first, second, ok := strings.Cut(key, Separator)
	if !ok || first == "" || second == "" {
		return "", "", fmt.Errorf("%w: key %q", ErrInvalidIdentifier, key)
	}
	return first, second, nil
}

// Validate checks that id can take part in a conversation key.
func Validate(id string) error {
	_, err := parse(id)
	return err
}

func parse(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || strings.TrimSpace(id) != id {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return n, nil
}
