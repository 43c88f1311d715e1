package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/principal"
)

type principalRepository struct {
	db *principalTable
}

var _ principal.Repository = (*principalRepository)(nil)

func NewPrincipalRepository(db *DB) *principalRepository {
	return &principalRepository{db: db.principal}
}

// live returns all non-soft-deleted principals.
func (repo *principalRepository) live() []principal.Principal {
	principals := make([]principal.Principal, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		if !p.DeletedAt.Valid {
			principals = append(principals, *p)
		}
	}
	return principals
}

func (repo *principalRepository) CreatePrincipal(_ context.Context, p principal.Principal) (principal.Principal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.live() {
		if strings.EqualFold(existing.Email, p.Email) {
			return principal.Principal{}, principal.ErrEmailTaken
		}
		if existing.Code == p.Code {
			return principal.Principal{}, principal.ErrCodeTaken
		}
	}
	repo.db.table[p.ID] = &p
	return p, nil
}

func (repo *principalRepository) GetPrincipal(_ context.Context, filter principal.GetFilter) (principal.Principal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.table[filter.ID]; ok && !p.DeletedAt.Valid {
			return *p, nil
		}
		return principal.Principal{}, principal.ErrNotFound
	}
	for _, p := range repo.live() {
		if strings.EqualFold(p.Email, filter.Email) {
			if filter.Role != "" && p.Role != filter.Role {
				continue
			}
			return p, nil
		}
	}
	return principal.Principal{}, principal.ErrNotFound
}

func (repo *principalRepository) QueryPrincipals(_ context.Context, filter *principal.QueryFilter, ordering []core.DBOrdering) ([]principal.Principal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	principals := repo.live()
	if filter != nil {
		matched := make([]principal.Principal, 0, len(principals))
		for _, p := range principals {
			if matches(p, filter) {
				matched = append(matched, p)
			}
		}
		principals = matched
	}

	// the dummy repo only honors created_at ordering; that is all the API uses
	sort.Slice(principals, func(i, j int) bool {
		if descendingCreatedAt(ordering) {
			return principals[i].CreatedAt.After(principals[j].CreatedAt)
		}
		return principals[i].CreatedAt.Before(principals[j].CreatedAt)
	})
	return principals, nil
}

func matches(p principal.Principal, filter *principal.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(p.FirstName), s) ||
			strings.Contains(strings.ToLower(p.LastName), s) ||
			strings.Contains(strings.ToLower(p.Email), s) ||
			strings.Contains(strings.ToLower(p.Code), s)) {
			return false
		}
	}
	if len(filter.Roles) > 0 && !containsRole(filter.Roles, p.Role) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, p.Status) {
		return false
	}
	if !filter.CreatedFrom.IsZero() && p.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && p.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func containsRole(roles []principal.Role, role principal.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func containsStatus(statuses []principal.Status, status principal.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func descendingCreatedAt(ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		if ord.Field == "created_at" {
			return !ord.Ascending
		}
	}
	return false
}

func (repo *principalRepository) UpdatePasswordHash(_ context.Context, id string, hash []byte, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.table[id]
	if !ok || p.DeletedAt.Valid {
		return principal.ErrNotFound
	}
	p.PasswordHash = hash
	p.UpdatedAt = at
	return nil
}

func (repo *principalRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.table[id]
	if !ok || p.DeletedAt.Valid {
		return principal.ErrNotFound
	}
	p.LastLogin = null.TimeFrom(at)
	p.UpdatedAt = at
	return nil
}

func (repo *principalRepository) SoftDeletePrincipals(_ context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	now := time.Now().UTC()
	for _, id := range ids {
		if p, ok := repo.db.table[id]; ok && !p.DeletedAt.Valid {
			p.DeletedAt = null.TimeFrom(now)
			p.UpdatedAt = now
			cnt++
		}
	}
	return cnt, nil
}
