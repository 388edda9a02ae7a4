package aegis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/store"
)

// RegisterPermission adds slug to the catalog. For an existing entry only
// the description is refreshed: its active flag, label and metadata are
// left as an administrator set them.
func (e *Engine) RegisterPermission(ctx context.Context, slug permission.Slug, description string) (*permission.Permission, error) {
	slug, err := permission.ParseSlug(string(slug))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	p, err := e.store.GetPermissionBySlug(ctx, slug)
	switch {
	case err == nil:
		if p.Description == description {
			return p, nil
		}
		p.Description = description
		p.UpdatedAt = now
		if err := e.store.UpdatePermission(ctx, p); err != nil {
			return nil, fmt.Errorf("aegis: register permission %s: %w", slug, err)
		}
	case errors.Is(err, store.ErrNotFound):
		p = permission.New(slug, description)
		p.CreatedAt, p.UpdatedAt = now, now
		if err := e.store.UpsertPermission(ctx, p); err != nil {
			return nil, fmt.Errorf("aegis: register permission %s: %w", slug, err)
		}
		e.invalidateAll(ctx)
	default:
		return nil, fmt.Errorf("aegis: register permission %s: %w", slug, err)
	}

	e.logger.Info("aegis: permission registered", slog.String("permission", slug.String()))
	if e.plugins != nil {
		e.plugins.EmitPermissionRegistered(ctx, p)
	}
	return p, nil
}

// SeedDefaults registers the built-in catalog entries that are missing.
// Entries already present are not touched, so repeated seeding on start
// never undoes an administrator's changes.
func (e *Engine) SeedDefaults(ctx context.Context) error {
	for _, p := range permission.DefaultCatalog() {
		_, err := e.FindPermission(ctx, p.Slug)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrPermissionNotFound) {
			return err
		}
		if _, err := e.RegisterPermission(ctx, p.Slug, p.Description); err != nil {
			return err
		}
	}
	return nil
}

// FindPermission returns the catalog entry for slug.
func (e *Engine) FindPermission(ctx context.Context, slug permission.Slug) (*permission.Permission, error) {
	p, err := e.store.GetPermissionBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPermissionNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("aegis: find permission %s: %w", slug, err)
	}
	return p, nil
}

// ListPermissions returns catalog entries ordered by module then action.
// An empty module lists the whole catalog, including inactive entries.
func (e *Engine) ListPermissions(ctx context.Context, module string) ([]*permission.Permission, error) {
	return e.store.ListPermissions(ctx, &permission.ListFilter{Module: module})
}

// ActivatePermission makes slug grantable again.
func (e *Engine) ActivatePermission(ctx context.Context, slug permission.Slug) error {
	return e.setPermissionActive(ctx, slug, true)
}

// DeactivatePermission hides slug from evaluation without deleting it or
// the overrides that reference it.
func (e *Engine) DeactivatePermission(ctx context.Context, slug permission.Slug) error {
	return e.setPermissionActive(ctx, slug, false)
}

func (e *Engine) setPermissionActive(ctx context.Context, slug permission.Slug, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.FindPermission(ctx, slug)
	if err != nil {
		return err
	}
	if p.Active == active {
		return nil
	}
	p.Active = active
	p.UpdatedAt = e.now()
	if err := e.store.UpdatePermission(ctx, p); err != nil {
		return fmt.Errorf("aegis: update permission %s: %w", slug, err)
	}

	e.logger.Info("aegis: permission status changed",
		slog.String("permission", slug.String()),
		slog.Bool("active", active),
	)
	e.invalidateAll(ctx)
	return nil
}

// DeletePermission removes slug from the catalog and drops every override
// that references it.
func (e *Engine) DeletePermission(ctx context.Context, slug permission.Slug) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.FindPermission(ctx, slug)
	if err != nil {
		return err
	}
	if err := e.store.RemoveOverridesForPermission(ctx, slug); err != nil {
		return fmt.Errorf("aegis: remove overrides for %s: %w", slug, err)
	}
	if err := e.store.DeletePermission(ctx, p.ID); err != nil {
		return fmt.Errorf("aegis: delete permission %s: %w", slug, err)
	}

	e.logger.Info("aegis: permission deleted", slog.String("permission", slug.String()))
	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitPermissionDeleted(ctx, slug)
	}
	return nil
}

// requirePermission checks that slug is in the catalog. Inactive entries
// count: an administrator may configure a permission before enabling it.
func (e *Engine) requirePermission(ctx context.Context, slug permission.Slug) error {
	_, err := e.FindPermission(ctx, slug)
	return err
}

// invalidateAll drops every cached decision and the catalog snapshot.
func (e *Engine) invalidateAll(ctx context.Context) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.gen.Add(1)
	e.catalogGen.Add(1)
	if e.cache != nil {
		e.cache.InvalidateAll(ctx)
	}
}

func (e *Engine) invalidateUser(ctx context.Context, userID string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.gen.Add(1)
	if e.cache != nil {
		e.cache.InvalidateUser(ctx, userID)
	}
}
