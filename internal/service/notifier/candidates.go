package notifier

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
)

type candidateQuery struct {
	TenantID              uuid.UUID
	ProjectID             *uuid.UUID
	ActorUserID           *uuid.UUID
	SpecificUserIDs       []uuid.UUID
	PermissionCodes       []string
	IncludeProjectMembers bool
}

// resolveCandidates computes the set of users eligible to receive an event:
// explicit ids, union permission holders (tenant-wide plus project-scoped),
// optionally widened to project members and privileged users, minus the
// actor, filtered to active users. Pure read, no side effects.
func (s *Service) resolveCandidates(ctx context.Context, q *candidateQuery) ([]*model.Candidate, error) {
	explicit := make(map[uuid.UUID]struct{}, len(q.SpecificUserIDs))
	for _, id := range q.SpecificUserIDs {
		explicit[id] = struct{}{}
	}

	permitted := make(map[uuid.UUID]struct{})
	if len(q.PermissionCodes) > 0 {
		tenantWide, err := s.usersWithPermissionCached(ctx, q.TenantID, q.PermissionCodes)
		if err != nil {
			return nil, err
		}
		for _, id := range tenantWide {
			permitted[id] = struct{}{}
		}

		if q.ProjectID != nil {
			members, err := s.directory.ProjectMembersWithPermission(ctx, *q.ProjectID, q.PermissionCodes)
			if err != nil {
				return nil, err
			}
			for _, id := range members {
				permitted[id] = struct{}{}
			}
		}
	}

	scoped := permitted
	if q.IncludeProjectMembers && q.ProjectID != nil {
		members, err := s.directory.ProjectMembers(ctx, *q.ProjectID)
		if err != nil {
			return nil, err
		}

		scoped = make(map[uuid.UUID]struct{})
		if len(permitted) > 0 {
			// Membership narrows the permission set when both are given.
			for _, id := range members {
				if _, ok := permitted[id]; ok {
					scoped[id] = struct{}{}
				}
			}
		} else {
			for _, id := range members {
				scoped[id] = struct{}{}
			}
		}

		// Privileged users are in regardless of membership.
		privileged, err := s.privilegedUsersCached(ctx, q.TenantID)
		if err != nil {
			return nil, err
		}
		for _, id := range privileged {
			scoped[id] = struct{}{}
		}
	}

	merged := make(map[uuid.UUID]struct{}, len(explicit)+len(scoped))
	for id := range explicit {
		merged[id] = struct{}{}
	}
	for id := range scoped {
		merged[id] = struct{}{}
	}
	if q.ActorUserID != nil {
		delete(merged, *q.ActorUserID)
	}
	if len(merged) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}

	// Inactive users drop out here; the directory also collapses duplicates.
	return s.directory.ActiveUsers(ctx, ids)
}

func (s *Service) usersWithPermissionCached(ctx context.Context, tenantID uuid.UUID, codes []string) ([]uuid.UUID, error) {
	key := permissionCacheKey(tenantID, codes)
	if cached, ok := s.dirCache.Get(key); ok {
		return cached.([]uuid.UUID), nil
	}

	ids, err := s.directory.UsersWithPermission(ctx, tenantID, codes)
	if err != nil {
		return nil, err
	}
	s.dirCache.SetDefault(key, ids)
	return ids, nil
}

func (s *Service) privilegedUsersCached(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	key := "privileged:" + tenantID.String()
	if cached, ok := s.dirCache.Get(key); ok {
		return cached.([]uuid.UUID), nil
	}

	ids, err := s.directory.PrivilegedUsers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.dirCache.SetDefault(key, ids)
	return ids, nil
}

func permissionCacheKey(tenantID uuid.UUID, codes []string) string {
	sorted := make([]string, len(codes))
	copy(sorted, codes)
	sort.Strings(sorted)
	return "permission:" + tenantID.String() + ":" + strings.Join(sorted, ",")
}
