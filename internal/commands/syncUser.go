package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"palaver/internal/api"
	"palaver/internal/config"
)

// SyncUser pushes a profile to the admin API of a running server, the
// same way the auth collaborator does. Useful for seeding users from
// the command line.
func SyncUser(id, displayName, email string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.SyncUserRequest{
		ID:          id,
		DisplayName: displayName,
		Email:       email,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to sync user (Status: %d): %s", resp.StatusCode, string(body))
	}

	fmt.Printf("User %s synced.\n", id)
	return nil
}
