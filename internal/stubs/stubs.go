// Package stubs holds seed profiles for local development.
package stubs

import (
	"palaver/internal/models"
)

var Profiles = []models.Profile{
	{ID: "u-alice", DisplayName: "Alice", Email: "alice@example.com", AvatarRef: "https://api.dicebear.com/7.x/avataaars/svg?seed=Alice"},
	{ID: "u-bob", DisplayName: "Bob", Email: "bob@example.com", AvatarRef: "https://api.dicebear.com/7.x/avataaars/svg?seed=Bob"},
	{ID: "u-charlie", DisplayName: "Charlie", Email: "charlie@example.com", AvatarRef: "https://api.dicebear.com/7.x/avataaars/svg?seed=Charlie"},
}
