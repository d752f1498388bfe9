package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateNewSessionID - generates an id for a new websocket connection.
func GenerateNewSessionID() string {
	return uuid.NewString()
}

// GenerateRoomCode - generates a room code of the given length from uppercase letters and digits.
func GenerateRoomCode(length int) (string, error) {
	code := make([]byte, length)
	limit := big.NewInt(int64(len(roomCodeAlphabet)))

	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}

		code[i] = roomCodeAlphabet[n.Int64()]
	}

	return string(code), nil
}
