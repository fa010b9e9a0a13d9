package jwt

import (
	"errors"
	"fmt"

	"bus-tracker/internal/tracker/domain"
)

var ErrSubjectMismatch = errors.New("token subject does not match declared user")

// ValidateRegistration verifies the token carried by a register frame: the
// signature must be valid, the role claim must match the declared role, and
// the subject must match the declared user id.
func ValidateRegistration(mgr *Manager, token string, role domain.Role, userID string) (*Claims, error) {
	claims, err := mgr.ParseAndValidate(token)
	if err != nil {
		return nil, err
	}

	if claims.Role != role {
		return nil, fmt.Errorf("%w: token role %q, declared %q", ErrRoleForbidden, claims.Role, role)
	}
	if claims.Subject != userID {
		return nil, ErrSubjectMismatch
	}

	return claims, nil
}
