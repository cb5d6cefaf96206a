// Package session is the composition root: it wires a backend, an identity
// provider, and the three data stores into one injectable container. A
// Session is constructed at startup and torn down at sign-out; nothing in
// the module lives in package-level singletons.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"taskdeck/internal/backend/postgrest"
	sqlitebackend "taskdeck/internal/backend/sqlite"
	"taskdeck/internal/board"
	"taskdeck/internal/config"
	"taskdeck/internal/directory"
	"taskdeck/internal/identity"
	"taskdeck/internal/model"
	"taskdeck/internal/registry"
	"taskdeck/internal/remote"
)

// Session bundles the stores for one signed-in (or local) user.
type Session struct {
	Store     remote.Store
	Provider  identity.Provider
	Directory *directory.Directory
	Registry  *registry.Registry
	Board     *board.Board

	// Auth is the hosted auth client; nil when running on the local
	// backend.
	Auth *identity.Client

	cancelAuth func()
	closeStore func() error
}

// New builds a session from config: the hosted PostgREST backend when a
// remote URL is configured, the local SQLite backend otherwise.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{}

	if cfg.HasRemote() {
		auth := identity.NewClient(cfg.RemoteURL, cfg.AnonKey, cfg.SessionPath())
		client := postgrest.New(cfg.RemoteURL, cfg.AnonKey)
		client.SetBearer(auth.AccessToken())

		// Keep the store's bearer in sync with the auth session so
		// row-level security follows sign-in and sign-out.
		s.cancelAuth = auth.OnSessionChange(func(_ identity.Identity, signedIn bool) {
			if signedIn {
				client.SetBearer(auth.AccessToken())
				return
			}
			client.SetBearer("")
		})

		s.Store = client
		s.Provider = auth
		s.Auth = auth
	} else {
		if err := cfg.EnsureDir(); err != nil {
			return nil, fmt.Errorf("config dir: %w", err)
		}
		store, err := sqlitebackend.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		s.closeStore = store.Close

		id, err := localIdentity(cfg)
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := ensureLocalPerson(ctx, store, id); err != nil {
			store.Close()
			return nil, err
		}

		s.Store = store
		s.Provider = identity.NewStatic(id)
	}

	s.Directory = directory.New(s.Store, logger)
	s.Registry = registry.New(s.Store, s.Provider, logger)
	s.Board = board.New(s.Store, s.Registry, s.Directory, s.Provider, logger)
	return s, nil
}

// Close tears the session down.
func (s *Session) Close() error {
	if s.cancelAuth != nil {
		s.cancelAuth()
	}
	if s.closeStore != nil {
		return s.closeStore()
	}
	return nil
}

// localIdentity loads or creates the identity used with the local backend.
func localIdentity(cfg *config.Config) (identity.Identity, error) {
	path := cfg.SessionPath()
	if data, err := os.ReadFile(path); err == nil {
		var id identity.Identity
		if err := json.Unmarshal(data, &id); err == nil && id.ID != "" {
			return id, nil
		}
	}

	user := os.Getenv("USER")
	if user == "" {
		user = "local"
	}
	id := identity.Identity{
		ID:    uuid.NewString(),
		Email: user + "@localhost",
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return identity.Identity{}, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return identity.Identity{}, fmt.Errorf("save local identity: %w", err)
	}
	return id, nil
}

// ensureLocalPerson inserts the directory entry for the local identity if it
// does not exist yet.
func ensureLocalPerson(ctx context.Context, store remote.Store, id identity.Identity) error {
	var people []model.Person
	err := store.Select(ctx, remote.Query{
		Table:   model.TablePeople,
		Filters: []remote.Filter{remote.Eq("id", id.ID)},
		Limit:   1,
	}, &people)
	if err != nil {
		return err
	}
	if len(people) > 0 {
		return nil
	}

	return store.Insert(ctx, model.TablePeople, map[string]any{
		"id":    id.ID,
		"email": id.Email,
		"name":  id.Email,
		"role":  model.RoleMember,
	}, nil)
}
