package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/tracker/domain"
)

func TestManager_IssueAndValidate(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	token, claims, err := mgr.IssueToken("bus1", domain.RoleDriver)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, domain.RoleDriver, claims.Role)
	assert.Equal(t, "bus1", claims.Subject)

	parsed, err := mgr.ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDriver, parsed.Role)
	assert.Equal(t, "bus1", parsed.Subject)
}

func TestManager_IssueTokenInvalidRole(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	_, _, err := mgr.IssueToken("u1", domain.Role("admin"))
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestManager_ParseAndValidate(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	t.Run("empty token", func(t *testing.T) {
		_, err := mgr.ParseAndValidate("")
		assert.ErrorIs(t, err, ErrEmptyToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := mgr.ParseAndValidate("not.a.token")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewManager("other-secret", time.Hour)
		token, _, err := other.IssueToken("bus1", domain.RoleDriver)
		require.NoError(t, err)

		_, err = mgr.ParseAndValidate(token)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		short := NewManager("test-secret", -time.Minute)
		token, _, err := short.IssueToken("bus1", domain.RoleDriver)
		require.NoError(t, err)

		_, err = short.ParseAndValidate(token)
		assert.Error(t, err)
	})
}

func TestNewManager_PanicsOnEmptySecret(t *testing.T) {
	assert.Panics(t, func() { NewManager("  ", time.Hour) })
}

func TestValidateRegistration(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	token, _, err := mgr.IssueToken("bus1", domain.RoleDriver)
	require.NoError(t, err)

	t.Run("accepts matching role and subject", func(t *testing.T) {
		claims, err := ValidateRegistration(mgr, token, domain.RoleDriver, "bus1")
		require.NoError(t, err)
		assert.Equal(t, "bus1", claims.Subject)
	})

	t.Run("rejects role mismatch", func(t *testing.T) {
		_, err := ValidateRegistration(mgr, token, domain.RoleRider, "bus1")
		assert.ErrorIs(t, err, ErrRoleForbidden)
	})

	t.Run("rejects subject mismatch", func(t *testing.T) {
		_, err := ValidateRegistration(mgr, token, domain.RoleDriver, "bus2")
		assert.ErrorIs(t, err, ErrSubjectMismatch)
	})
}
