package server

import (
	"strings"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

// Namespace prefixes for topics and rooms.
const (
	nsSystem = "system"
	nsPublic = "public"
	nsUser   = "user"
	nsNode   = "node"
	nsAdmin  = "admin"
)

func splitName(name string) []string {
	if name == "" {
		return nil
	}
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}
	return parts
}

// topicAllowed evaluates the subscription policy for a single topic.
//
//	system.*      anyone
//	user.<id>.*   user <id>, or admin
//	node.<id>.*   node <id>, or admin
//	admin.*       admin
//
// Everything else is denied.
func topicAllowed(id *auth.Identity, topic string) bool {
	parts := splitName(topic)
	if len(parts) < 2 {
		return false
	}

	switch parts[0] {
	case nsSystem:
		return true
	case nsAdmin:
		return id.Kind == auth.KindAdmin
	case nsUser, nsNode:
		if len(parts) < 3 {
			return false
		}
		if id.Kind == auth.KindAdmin {
			return true
		}
		return id.Owns(auth.Kind(parts[0]), parts[1])
	default:
		return false
	}
}

// roomAllowed evaluates the join policy for a room. public.* is open; a
// private `<kind>.<subjectId>.*` room needs the matching identity or the admin role.
func roomAllowed(id *auth.Identity, room string) bool {
	parts := splitName(room)
	if len(parts) < 2 {
		return false
	}

	if parts[0] == nsPublic {
		return true
	}

	if len(parts) < 3 {
		return false
	}

	switch parts[0] {
	case nsUser, nsNode, nsAdmin:
		if id.IsAdmin() {
			return true
		}
		return id.Owns(auth.Kind(parts[0]), parts[1])
	default:
		return false
	}
}
