// Package directory mirrors the people table of the remote store and
// resolves the signed-in identity to a directory entry.
package directory

import (
	"context"
	"log/slog"
	"sync"

	"taskdeck/internal/identity"
	"taskdeck/internal/model"
	"taskdeck/internal/remote"
)

// Directory is the client-side people cache. It is populated by Refresh and
// replaced wholesale on every successful fetch; lookups never touch the
// network.
type Directory struct {
	store  remote.Store
	logger *slog.Logger

	mu     sync.Mutex
	people []model.Person

	// loading is shared by overlapping actions: a fast second call clears
	// it while a slower first call is still in flight.
	loading bool
	lastErr error
}

// New creates an empty directory backed by store.
func New(store remote.Store, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, logger: logger}
}

// People returns the cached entries, ordered by name.
func (d *Directory) People() []model.Person {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Person, len(d.people))
	copy(out, d.people)
	return out
}

// Loading reports whether an action is in flight.
func (d *Directory) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// Err returns the last action failure, or nil.
func (d *Directory) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Refresh fetches all people ordered by name and replaces the cache. On
// failure the cache is left unchanged.
func (d *Directory) Refresh(ctx context.Context) error {
	d.begin()

	var people []model.Person
	err := d.store.Select(ctx, remote.Query{
		Table: model.TablePeople,
		Order: []remote.Order{{Column: "name"}},
	}, &people)
	if err != nil {
		d.finish("refresh people", err)
		return err
	}

	d.mu.Lock()
	d.people = people
	d.mu.Unlock()
	d.finish("refresh people", nil)
	return nil
}

// FindByRole returns the cached people whose role equals role.
func (d *Directory) FindByRole(role string) []model.Person {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.Person
	for _, p := range d.people {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// FindByEmail returns the first cached person with a matching email. The
// comparison is exact; no case normalization is performed.
func (d *Directory) FindByEmail(email string) (model.Person, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.people {
		if p.Email == email {
			return p, true
		}
	}
	return model.Person{}, false
}

// ResolveCurrentPerson maps the provider's current identity to a directory
// entry. Any identity failure or cache miss reports "no current person"
// rather than an error.
func (d *Directory) ResolveCurrentPerson(provider identity.Provider) (model.Person, bool) {
	if provider == nil {
		return model.Person{}, false
	}
	id, ok := provider.CurrentIdentity()
	if !ok {
		return model.Person{}, false
	}
	return d.FindByEmail(id.Email)
}

// CreatePerson inserts a directory entry keyed by the identity's id, then
// refreshes the cache. Role defaults to member.
func (d *Directory) CreatePerson(ctx context.Context, person model.Person, id identity.Identity) error {
	d.begin()

	role := person.Role
	if role == "" {
		role = model.RoleMember
	}
	row := map[string]any{
		"id":         id.ID,
		"email":      person.Email,
		"name":       person.Name,
		"role":       role,
		"avatar_url": person.AvatarURL,
	}
	if err := d.store.Insert(ctx, model.TablePeople, row, nil); err != nil {
		d.finish("create person", err)
		return err
	}
	d.finish("create person", nil)

	return d.Refresh(ctx)
}

// UpdatePerson patches a person row, then refreshes the cache.
func (d *Directory) UpdatePerson(ctx context.Context, personID string, patch map[string]any) error {
	d.begin()

	err := d.store.Update(ctx, model.TablePeople, patch,
		[]remote.Filter{remote.Eq("id", personID)}, nil)
	if err != nil {
		d.finish("update person", err)
		return err
	}
	d.finish("update person", nil)

	return d.Refresh(ctx)
}

func (d *Directory) begin() {
	d.mu.Lock()
	d.loading = true
	d.mu.Unlock()
}

func (d *Directory) finish(action string, err error) {
	d.mu.Lock()
	d.loading = false
	d.lastErr = err
	d.mu.Unlock()
	if err != nil {
		d.logger.Error(action, slog.String("error", err.Error()))
	}
}
