package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository"
)

// Global admin roles that can see everything in a tenant.
var privilegedRoleNames = []string{"admin", "principal"}

// Holders of the general project permissions are notified about project
// events regardless of membership.
var privilegedPermissionCodes = []string{"project.view", "project.edit"}

type directoryRepository struct {
	BaseRepository
}

// NewDirectoryRepository reads the user/role/permission directory maintained
// by the business modules. Everything here is a pure read.
func NewDirectoryRepository(base BaseRepository) repository.DirectoryRepository {
	return &directoryRepository{base}
}

func (r *directoryRepository) ProjectTenant(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	query := `SELECT tenant_id FROM projects WHERE id = $1`

	var tenantID uuid.UUID
	err := r.db.GetContext(ctx, &tenantID, query, projectID)
	r.track("directory.project_tenant", err)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, repository.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve project tenant: %w", err)
	}
	return tenantID, nil
}

func (r *directoryRepository) UsersWithPermission(ctx context.Context, tenantID uuid.UUID, codes []string) ([]uuid.UUID, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT ur.user_id
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions perm ON perm.id = rp.permission_id
		JOIN users u ON u.id = ur.user_id
		WHERE u.tenant_id = $1 AND perm.code = ANY($2)
	`
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, tenantID, pq.Array(codes))
	r.track("directory.users_with_permission", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query users with permission: %w", err)
	}
	return ids, nil
}

func (r *directoryRepository) ProjectMembersWithPermission(ctx context.Context, projectID uuid.UUID, codes []string) ([]uuid.UUID, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT pm.user_id
		FROM project_members pm
		JOIN role_permissions rp ON rp.role_id = pm.role_id
		JOIN permissions perm ON perm.id = rp.permission_id
		WHERE pm.project_id = $1 AND perm.code = ANY($2)
	`
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, projectID, pq.Array(codes))
	r.track("directory.project_members_with_permission", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query project members with permission: %w", err)
	}
	return ids, nil
}

func (r *directoryRepository) ProjectMembers(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM project_members WHERE project_id = $1`

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, projectID)
	r.track("directory.project_members", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query project members: %w", err)
	}
	return ids, nil
}

func (r *directoryRepository) PrivilegedUsers(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT u.id
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles ro ON ro.id = ur.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = ur.role_id
		LEFT JOIN permissions perm ON perm.id = rp.permission_id
		WHERE u.tenant_id = $1
		  AND (ro.name = ANY($2) OR perm.code = ANY($3))
	`
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, tenantID,
		pq.Array(privilegedRoleNames), pq.Array(privilegedPermissionCodes))
	r.track("directory.privileged_users", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query privileged users: %w", err)
	}
	return ids, nil
}

func (r *directoryRepository) ActiveUsers(ctx context.Context, ids []uuid.UUID) ([]*model.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, email, name
		FROM users
		WHERE id = ANY($1) AND status = 'active'
	`
	var users []*model.Candidate
	err := r.db.SelectContext(ctx, &users, query, pq.Array(ids))
	r.track("directory.active_users", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	return users, nil
}

func (r *directoryRepository) UserProfile(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	query := `SELECT id, name, COALESCE(avatar_url, '') AS avatar_url FROM users WHERE id = $1`

	var row struct {
		ID        uuid.UUID `db:"id"`
		Name      string    `db:"name"`
		AvatarURL string    `db:"avatar_url"`
	}
	err := r.db.GetContext(ctx, &row, query, id)
	r.track("directory.user_profile", err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	return &model.Actor{ID: row.ID, Name: row.Name, AvatarURL: row.AvatarURL}, nil
}
