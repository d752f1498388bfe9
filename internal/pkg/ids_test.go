package pkg

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomCode(t *testing.T) {
	// When: generating codes
	for range 100 {
		code, err := GenerateRoomCode(6)
		require.NoError(t, err)

		// Then: every code has six uppercase alphanumerics
		assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
	}
}

func TestGenerateNewSessionID(t *testing.T) {
	first := GenerateNewSessionID()
	second := GenerateNewSessionID()

	_, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
