package api

import (
	"net/http"

	"palaver/internal/models"

	"github.com/go-playground/validator/v10"
)

type profileDirectory interface {
	Upsert(p models.Profile) error
	List() ([]models.Profile, error)
}

// AdminHandler serves the internal endpoints the auth collaborator uses
// to keep the profile directory in sync. It is bound to a separate
// listener that is never exposed publicly.
type AdminHandler struct {
	directory profileDirectory
	validate  *validator.Validate
}

func NewAdminHandler(directory profileDirectory) *AdminHandler {
	return &AdminHandler{
		directory: directory,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

type SyncUserRequest struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	AvatarRef   string `json:"avatarRef"`
}

// SyncUserHandler handles POST /admin/users: upsert of a profile pushed
// by the auth collaborator.
func (h *AdminHandler) SyncUserHandler(w http.ResponseWriter, r *http.Request) {
	var req SyncUserRequest
	if !decode(h.validate, w, r, &req) {
		return
	}

	err := h.directory.Upsert(models.Profile{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		AvatarRef:   req.AvatarRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "user synced"})
}

// ListUsersHandler handles GET /admin/users: full profiles, email
// included. Internal listener only.
func (h *AdminHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.directory.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}
