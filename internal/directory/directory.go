// Package directory mirrors user profiles owned by the external auth
// collaborator and resolves request identity. The core never validates
// credentials; it trusts the identity the upstream auth layer injects.
package directory

import (
	"context"
	"net/http"
	"time"

	"palaver/internal/models"

	"github.com/c-pro/geche"
)

// ProfileStore is the persistence the directory mirrors into.
type ProfileStore interface {
	UpsertProfile(p models.Profile) error
	GetProfile(id string) (models.Profile, error)
	ListProfiles() ([]models.Profile, error)
}

type Directory struct {
	store  ProfileStore
	cache  geche.Geche[string, models.Profile]
	header string
}

// New builds a directory over store. Lookups are served from a TTL cache
// so hydration does not hit the store once per referenced user.
func New(ctx context.Context, store ProfileStore, header string, cacheTTL time.Duration) *Directory {
	return &Directory{
		store:  store,
		cache:  geche.NewMapTTLCache[string, models.Profile](ctx, cacheTTL, time.Minute),
		header: header,
	}
}

// Upsert stores a profile synced from the auth collaborator and refreshes
// the cache entry.
func (d *Directory) Upsert(p models.Profile) error {
	if err := d.store.UpsertProfile(p); err != nil {
		return err
	}
	d.cache.Set(p.ID, p)
	return nil
}

// Lookup returns the profile for id.
func (d *Directory) Lookup(id string) (models.Profile, error) {
	if p, err := d.cache.Get(id); err == nil {
		return p, nil
	}
	p, err := d.store.GetProfile(id)
	if err != nil {
		return models.Profile{}, err
	}
	d.cache.Set(id, p)
	return p, nil
}

// LookupAll resolves every id or fails. A missing profile for a
// referenced user means the directory mirror is out of sync with the
// auth collaborator, which is a dependency failure, never a partial
// result.
func (d *Directory) LookupAll(ids []string) (map[string]models.Profile, error) {
	out := make(map[string]models.Profile, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		p, err := d.Lookup(id)
		if err != nil {
			return nil, &models.Error{Kind: models.ErrDependency, Field: "user", Msg: "referenced user cannot be resolved"}
		}
		out[id] = p
	}
	return out, nil
}

// List returns all known profiles.
func (d *Directory) List() ([]models.Profile, error) {
	return d.store.ListProfiles()
}

// Identity extracts the pre-validated user identity from a request. The
// header is set by the upstream auth layer; the core does not re-validate
// it.
func (d *Directory) Identity(r *http.Request) (string, error) {
	id := r.Header.Get(d.header)
	if id == "" {
		return "", models.Authorization("missing authenticated identity")
	}
	return id, nil
}
