package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	s := NewSigner("test-signing-secret-used-only-in-tests", time.Hour)

	tok, err := s.Mint("10.0.0.5", 9001, 9002, SurfaceDataParticipant)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	claims, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", claims.Host)
	assert.Equal(t, 9001, claims.OpsPort)
	assert.Equal(t, 9002, claims.ParticipantPort)
	assert.Equal(t, SurfaceDataParticipant, claims.Surface)
}

func TestVerify_Expired(t *testing.T) {
	s := NewSigner("test-signing-secret-used-only-in-tests", -time.Minute)

	tok, err := s.Mint("10.0.0.5", 9001, 0, SurfaceChatOps)
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.Error(t, err)
}

func TestVerify_WrongSecret(t *testing.T) {
	s1 := NewSigner("first-signing-secret-for-testing-purposes", time.Hour)
	s2 := NewSigner("second-signing-secret-for-testing-purp", time.Hour)

	tok, err := s1.Mint("10.0.0.5", 9001, 0, SurfaceChatOps)
	require.NoError(t, err)

	_, err = s2.Verify(tok)
	assert.Error(t, err)
}
