package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenInvalid covers bad signatures, expiry, and claims that don't
	// match the requested kind.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrInsufficientPermissions is returned when admin is requested without an admin role.
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// Gate maps verified token claims to identities.
type Gate struct {
	verifier   TokenVerifier
	adminRoles map[string]struct{}
}

// NewGate creates a Gate. adminRoles lists the role claim values that grant admin.
func NewGate(verifier TokenVerifier, adminRoles []string) *Gate {
	roles := make(map[string]struct{}, len(adminRoles))
	for _, r := range adminRoles {
		roles[r] = struct{}{}
	}
	if len(roles) == 0 {
		roles[RoleAdmin] = struct{}{}
	}
	return &Gate{verifier: verifier, adminRoles: roles}
}

// Authenticate verifies token and builds the identity for requestedKind.
func (g *Gate) Authenticate(token, requestedKind string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrTokenInvalid)
	}

	kind, ok := ParseKind(requestedKind)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrTokenInvalid, requestedKind)
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	switch kind {
	case KindUser:
		if claims.UserID == "" {
			return nil, fmt.Errorf("%w: userId claim required", ErrTokenInvalid)
		}
		role := claims.Role
		if g.isAdminRole(role) {
			role = RoleAdmin
		} else if role == "" {
			role = string(KindUser)
		}
		return &Identity{Kind: KindUser, SubjectID: claims.UserID, Role: role}, nil

	case KindNode:
		if claims.NodeID == "" {
			return nil, fmt.Errorf("%w: nodeId claim required", ErrTokenInvalid)
		}
		return &Identity{Kind: KindNode, SubjectID: claims.NodeID, Role: string(KindNode)}, nil

	case KindAdmin:
		if !g.isAdminRole(claims.Role) {
			return nil, ErrInsufficientPermissions
		}
		subject := firstNonEmpty(claims.UserID, claims.Subject, claims.NodeID)
		if subject == "" {
			return nil, fmt.Errorf("%w: admin token has no subject", ErrTokenInvalid)
		}
		return &Identity{Kind: KindAdmin, SubjectID: subject, Role: RoleAdmin}, nil
	}

	return nil, fmt.Errorf("%w: unsupported kind %q", ErrTokenInvalid, requestedKind)
}

func (g *Gate) isAdminRole(role string) bool {
	if role == "" {
		return false
	}
	_, ok := g.adminRoles[role]
	return ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
