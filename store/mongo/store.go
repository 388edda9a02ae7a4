// Package mongo provides a MongoDB implementation of the Aegis composite
// store using grove's mongo driver. Role overrides live in their own
// collection keyed by role and permission slug.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/checklog"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
	"github.com/xraph/aegis/store"
)

// Collection name constants.
const (
	colRoles       = "aegis_roles"
	colOverrides   = "aegis_role_overrides"
	colPermissions = "aegis_permissions"
	colAssignments = "aegis_assignments"
	colCheckLogs   = "aegis_check_logs"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Aegis store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all aegis collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("aegis/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// contains builds a case-insensitive substring match.
func contains(text string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(text), "$options": "i"}
}

// activeAt matches assignments without expiry or expiring after t.
func activeAt(t time.Time) bson.A {
	return bson.A{
		bson.M{"expires_at": nil},
		bson.M{"expires_at": bson.M{"$gt": t}},
	}
}

// migrationIndexes returns the index definitions for all aegis collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRoles: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colOverrides: {
			{
				Keys:    bson.D{{Key: "role_id", Value: 1}, {Key: "permission_slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "permission_slug", Value: 1}}},
		},
		colPermissions: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "module", Value: 1}, {Key: "action", Value: 1}}},
		},
		colAssignments: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "role_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colCheckLogs: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "decision", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	t := now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = t
	}
	if _, err := s.mdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("role slug %q: %w", r.Slug, store.ErrDuplicate)
		}
		return fmt.Errorf("aegis: create role: %w", err)
	}
	if len(r.Overrides) > 0 {
		docs := make([]overrideModel, 0, len(r.Overrides))
		for slug, ov := range r.Overrides {
			docs = append(docs, overrideToModel(r.ID, slug, ov, r.UpdatedAt))
		}
		if _, err := s.mdb.NewInsert(&docs).Exec(ctx); err != nil {
			return fmt.Errorf("aegis: create role overrides: %w", err)
		}
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": roleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get role: %w", err)
	}
	r := roleFromModel(&m)
	if err := s.loadOverrides(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) GetRoleBySlug(ctx context.Context, slug string) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"slug": slug}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role slug %q: %w", slug, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get role by slug: %w", err)
	}
	r := roleFromModel(&m)
	if err := s.loadOverrides(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	r.UpdatedAt = now()
	m := roleToModel(r)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("role slug %q: %w", r.Slug, store.ErrDuplicate)
		}
		return fmt.Errorf("aegis: update role: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("role %s: %w", r.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	res, err := s.mdb.NewDelete((*roleModel)(nil)).
		Filter(bson.M{"_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete role: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	_, err = s.mdb.NewDelete((*overrideModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete role overrides: %w", err)
	}
	return nil
}

func roleFilter(filter *role.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Type != "" {
		f["type"] = string(filter.Type)
	}
	if filter.Active != nil {
		f["active"] = *filter.Active
	}
	if filter.Search != "" {
		f["$or"] = bson.A{
			bson.M{"name": contains(filter.Search)},
			bson.M{"slug": contains(filter.Search)},
		}
	}
	return f
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.mdb.NewFind(&models).
		Filter(roleFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	if err := s.loadOverrides(ctx, result...); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*roleModel)(nil)).
		Filter(roleFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count roles: %w", err)
	}
	return count, nil
}

// loadOverrides materializes overrides for the given roles in one query.
func (s *Store) loadOverrides(ctx context.Context, roles ...*role.Role) error {
	if len(roles) == 0 {
		return nil
	}
	ids := make(bson.A, len(roles))
	for i, r := range roles {
		ids[i] = r.ID.String()
	}
	var docs []overrideModel
	err := s.mdb.NewFind(&docs).
		Filter(bson.M{"role_id": bson.M{"$in": ids}}).
		Sort(bson.D{{Key: "permission_slug", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("aegis: load role overrides: %w", err)
	}
	attachOverrides(roles, docs)
	return nil
}

func (s *Store) SetOverride(ctx context.Context, roleID id.RoleID, slug permission.Slug, ov role.Override) error {
	exists, err := s.mdb.NewFind((*roleModel)(nil)).
		Filter(bson.M{"_id": roleID.String()}).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("aegis: set override: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}

	m := overrideToModel(roleID, slug, ov, now())
	res, err := s.mdb.NewUpdate(&m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: set override: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}
	if _, err := s.mdb.NewInsert(&m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			// A concurrent writer inserted first; replace its document.
			return s.SetOverride(ctx, roleID, slug, ov)
		}
		return fmt.Errorf("aegis: set override: %w", err)
	}
	return nil
}

func (s *Store) RemoveOverride(ctx context.Context, roleID id.RoleID, slug permission.Slug) error {
	_, err := s.mdb.NewDelete((*overrideModel)(nil)).
		Filter(bson.M{"_id": overrideKey(roleID, slug)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: remove override: %w", err)
	}
	return nil
}

func (s *Store) RemoveOverridesForPermission(ctx context.Context, slug permission.Slug) error {
	_, err := s.mdb.NewDelete((*overrideModel)(nil)).
		Many().
		Filter(bson.M{"permission_slug": string(slug)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: remove overrides for permission: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

func (s *Store) UpsertPermission(ctx context.Context, p *permission.Permission) error {
	t := now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = t
	}

	var existing permissionModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{"slug": string(p.Slug)}).
		Scan(ctx)
	switch {
	case err == nil:
		p.ID, _ = id.ParsePermissionID(existing.ID) //nolint:errcheck // stored IDs are always valid
		p.CreatedAt = existing.CreatedAt
		m := permissionToModel(p)
		if _, err := s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx); err != nil {
			return fmt.Errorf("aegis: upsert permission: %w", err)
		}
		return nil
	case isNoDocuments(err):
		if _, err := s.mdb.NewInsert(permissionToModel(p)).Exec(ctx); err != nil {
			if mongod.IsDuplicateKeyError(err) {
				return s.UpsertPermission(ctx, p)
			}
			return fmt.Errorf("aegis: upsert permission: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("aegis: upsert permission: %w", err)
	}
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": permID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get permission: %w", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) GetPermissionBySlug(ctx context.Context, slug permission.Slug) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"slug": string(slug)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("permission %q: %w", slug, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get permission by slug: %w", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) UpdatePermission(ctx context.Context, p *permission.Permission) error {
	p.UpdatedAt = now()
	m := permissionToModel(p)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: update permission: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("permission %s: %w", p.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	res, err := s.mdb.NewDelete((*permissionModel)(nil)).
		Filter(bson.M{"_id": permID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete permission: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
	}
	return nil
}

func permissionFilter(filter *permission.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Module != "" {
		f["module"] = filter.Module
	}
	if filter.Action != "" {
		f["action"] = filter.Action
	}
	if filter.Active != nil {
		f["active"] = *filter.Active
	}
	if filter.Search != "" {
		f["$or"] = bson.A{
			bson.M{"slug": contains(filter.Search)},
			bson.M{"label": contains(filter.Search)},
		}
	}
	return f
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.mdb.NewFind(&models).
		Filter(permissionFilter(filter)).
		Sort(bson.D{{Key: "module", Value: 1}, {Key: "action", Value: 1}, {Key: "slug", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list permissions: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*permissionModel)(nil)).
		Filter(permissionFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count permissions: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) UpsertAssignment(ctx context.Context, a *assignment.Assignment) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = now()
	}

	var existing assignmentModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{"user_id": a.UserID, "role_id": a.RoleID.String()}).
		Scan(ctx)
	switch {
	case err == nil:
		a.ID, _ = id.ParseAssignmentID(existing.ID) //nolint:errcheck // stored IDs are always valid
		m := assignmentToModel(a)
		if _, err := s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx); err != nil {
			return fmt.Errorf("aegis: upsert assignment: %w", err)
		}
		return nil
	case isNoDocuments(err):
		if _, err := s.mdb.NewInsert(assignmentToModel(a)).Exec(ctx); err != nil {
			if mongod.IsDuplicateKeyError(err) {
				return s.UpsertAssignment(ctx, a)
			}
			return fmt.Errorf("aegis: upsert assignment: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("aegis: upsert assignment: %w", err)
	}
}

func (s *Store) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	var m assignmentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": assID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("assignment %s: %w", assID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get assignment: %w", err)
	}
	return assignmentFromModel(&m), nil
}

func (s *Store) FindAssignment(ctx context.Context, userID string, roleID id.RoleID) (*assignment.Assignment, error) {
	var m assignmentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"user_id": userID, "role_id": roleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("assignment %s/%s: %w", userID, roleID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: find assignment: %w", err)
	}
	return assignmentFromModel(&m), nil
}

func (s *Store) DeleteAssignment(ctx context.Context, assID id.AssignmentID) error {
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Filter(bson.M{"_id": assID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete assignment: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("assignment %s: %w", assID, store.ErrNotFound)
	}
	return nil
}

func assignmentFilter(filter *assignment.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.UserID != "" {
		f["user_id"] = filter.UserID
	}
	if filter.RoleID != nil {
		f["role_id"] = filter.RoleID.String()
	}
	if filter.ActiveAt != nil {
		f["$or"] = activeAt(*filter.ActiveAt)
	}
	return f
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.mdb.NewFind(&models).
		Filter(assignmentFilter(filter)).
		Sort(bson.D{{Key: "assigned_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list assignments: %w", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*assignmentModel)(nil)).
		Filter(assignmentFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) ListRolesForUser(ctx context.Context, userID string, t time.Time) ([]id.RoleID, error) {
	var models []assignmentModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID, "$or": activeAt(t)}).
		Sort(bson.D{{Key: "role_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("aegis: list roles for user: %w", err)
	}
	result := make([]id.RoleID, 0, len(models))
	for _, m := range models {
		if rid, err := id.ParseRoleID(m.RoleID); err == nil {
			result = append(result, rid)
		}
	}
	return result, nil
}

func (s *Store) DeleteExpiredAssignments(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"expires_at": bson.M{"$ne": nil, "$lte": t}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: delete expired assignments: %w", err)
	}
	return res.DeletedCount(), nil
}

func (s *Store) DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) error {
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete assignments by role: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignmentsByUser(ctx context.Context, userID string) error {
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"user_id": userID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete assignments by user: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Check log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateCheckLog(ctx context.Context, e *checklog.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	if _, err := s.mdb.NewInsert(checkLogToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create check log: %w", err)
	}
	return nil
}

func (s *Store) GetCheckLog(ctx context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	var m checkLogModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": logID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("check log %s: %w", logID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get check log: %w", err)
	}
	return checkLogFromModel(&m), nil
}

func checkLogFilter(filter *checklog.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.UserID != "" {
		f["user_id"] = filter.UserID
	}
	if filter.Action != "" {
		f["action"] = filter.Action
	}
	if filter.Resource != "" {
		f["resource"] = filter.Resource
	}
	if filter.Decision != "" {
		f["decision"] = filter.Decision
	}
	if filter.Allowed != nil {
		f["allowed"] = *filter.Allowed
	}
	if filter.After != nil || filter.Before != nil {
		dateFilter := bson.M{}
		if filter.After != nil {
			dateFilter["$gt"] = *filter.After
		}
		if filter.Before != nil {
			dateFilter["$lt"] = *filter.Before
		}
		f["created_at"] = dateFilter
	}
	return f
}

func (s *Store) ListCheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	var models []checkLogModel
	q := s.mdb.NewFind(&models).
		Filter(checkLogFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list check logs: %w", err)
	}
	result := make([]*checklog.Entry, len(models))
	for i := range models {
		result[i] = checkLogFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountCheckLogs(ctx context.Context, filter *checklog.QueryFilter) (int64, error) {
	count, err := s.mdb.NewFind((*checkLogModel)(nil)).
		Filter(checkLogFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count check logs: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*checkLogModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: purge check logs: %w", err)
	}
	return res.DeletedCount(), nil
}
