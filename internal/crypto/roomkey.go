package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinRoomKeyLength is the shortest join key accepted for private rooms.
const MinRoomKeyLength = 8

var (
	ErrRoomKeyTooShort = errors.New("room key too short")
	ErrRoomKeyMismatch = errors.New("room key mismatch")
)

// HashRoomKey hashes a room join key for storage.
func HashRoomKey(key string) (string, error) {
	if len(key) < MinRoomKeyLength {
		return "", fmt.Errorf("%w: min %d chars", ErrRoomKeyTooShort, MinRoomKeyLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckRoomKey verifies a presented key against a stored hash.
func CheckRoomKey(hash, key string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrRoomKeyMismatch
	}
	return nil
}
