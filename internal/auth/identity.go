// Package auth verifies credentials presented over an established gateway
// connection and turns them into immutable Identity values.
package auth

import "strings"

// Kind classifies the principal behind a connection.
type Kind string

const (
	KindAnonymous Kind = "anonymous"
	KindUser      Kind = "user"
	KindNode      Kind = "node"
	KindAdmin     Kind = "admin"
)

// RoleAdmin is the normalized role carried by identities holding any configured admin role.
const RoleAdmin = "admin"

// ParseKind maps a requested kind string onto a Kind. Anonymous can't be requested.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindUser:
		return KindUser, true
	case KindNode:
		return KindNode, true
	case KindAdmin:
		return KindAdmin, true
	default:
		return "", false
	}
}

// Identity is the principal associated with a connection. Values are never
// modified after construction; re-authentication swaps in a new one.
type Identity struct {
	Kind      Kind   `json:"kind"`
	SubjectID string `json:"subjectId"`
	Role      string `json:"role"`
}

var anonymous = &Identity{Kind: KindAnonymous, Role: string(KindAnonymous)}

// Anonymous returns the shared identity of unauthenticated connections.
func Anonymous() *Identity {
	return anonymous
}

// IsAdmin reports whether the identity carries admin privileges.
func (i *Identity) IsAdmin() bool {
	if i == nil {
		return false
	}
	return i.Kind == KindAdmin || i.Role == RoleAdmin
}

// Owns reports whether the identity is the kind/subject pair named by a
// private namespace, e.g. ("user", "u1") for `user.u1.*`.
func (i *Identity) Owns(kind Kind, subjectID string) bool {
	if i == nil || subjectID == "" {
		return false
	}
	return i.Kind == kind && i.SubjectID == subjectID
}
