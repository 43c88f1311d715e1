package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/principal"
)

const (
	uniqueViolation = "23505"

	emailConstraint = "principal_email_live_idx"
	codeConstraint  = "principal_code_live_idx"
)

const principalColumns = `id, code, first_name, last_name, email, phone, password_hash, role, status,
	date_of_birth, address, parent_name, parent_email, parent_phone, enrollment_date,
	last_login, created_at, updated_at, deleted_at`

type principalRow struct {
	ID             string      `db:"id"`
	Code           string      `db:"code"`
	FirstName      string      `db:"first_name"`
	LastName       string      `db:"last_name"`
	Email          string      `db:"email"`
	Phone          null.String `db:"phone"`
	PasswordHash   []byte      `db:"password_hash"`
	Role           string      `db:"role"`
	Status         string      `db:"status"`
	DateOfBirth    null.Time   `db:"date_of_birth"`
	Address        null.String `db:"address"`
	ParentName     null.String `db:"parent_name"`
	ParentEmail    null.String `db:"parent_email"`
	ParentPhone    null.String `db:"parent_phone"`
	EnrollmentDate null.Time   `db:"enrollment_date"`
	LastLogin      null.Time   `db:"last_login"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	DeletedAt      null.Time   `db:"deleted_at"`
}

type principalRepository struct {
	db *sqlx.DB
}

var _ principal.Repository = (*principalRepository)(nil) // interface compliance check

func NewPrincipalRepository(db *sqlx.DB) *principalRepository {
	return &principalRepository{db: db}
}

func (repo principalRepository) row(p principal.Principal) principalRow {
	return principalRow{
		ID:             p.ID,
		Code:           p.Code,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		Phone:          p.Phone,
		PasswordHash:   p.PasswordHash,
		Role:           string(p.Role),
		Status:         string(p.Status),
		DateOfBirth:    p.DateOfBirth,
		Address:        p.Address,
		ParentName:     p.ParentName,
		ParentEmail:    p.ParentEmail,
		ParentPhone:    p.ParentPhone,
		EnrollmentDate: p.EnrollmentDate,
		LastLogin:      p.LastLogin,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
		DeletedAt:      p.DeletedAt,
	}
}

func (repo principalRepository) unrow(row principalRow) principal.Principal {
	return principal.Principal{
		ID:             row.ID,
		Code:           row.Code,
		FirstName:      row.FirstName,
		LastName:       row.LastName,
		Email:          row.Email,
		Phone:          row.Phone,
		PasswordHash:   row.PasswordHash,
		Role:           principal.Role(row.Role),
		Status:         principal.Status(row.Status),
		DateOfBirth:    row.DateOfBirth,
		Address:        row.Address,
		ParentName:     row.ParentName,
		ParentEmail:    row.ParentEmail,
		ParentPhone:    row.ParentPhone,
		EnrollmentDate: row.EnrollmentDate,
		LastLogin:      row.LastLogin,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		DeletedAt:      row.DeletedAt,
	}
}

// trapUniqueErr maps a psql unique violation to the matching domain error.
func (repo principalRepository) trapUniqueErr(err error) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case emailConstraint:
			return principal.ErrEmailTaken
		case codeConstraint:
			return principal.ErrCodeTaken
		}
	}
	return err
}

// trapNoRowsErr maps psql "no rows" err to principal.ErrNotFound.
func (repo principalRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return principal.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// CreatePrincipal inserts p. Uniqueness of email and code among live rows is
// enforced by partial unique indexes, so concurrent registrations with the
// same email cannot both succeed.
func (repo principalRepository) CreatePrincipal(ctx context.Context, p principal.Principal) (principal.Principal, error) {
	const query = `
		INSERT INTO principal (` + principalColumns + `)
		VALUES (:id, :code, :first_name, :last_name, :email, :phone, :password_hash, :role, :status,
			:date_of_birth, :address, :parent_name, :parent_email, :parent_phone, :enrollment_date,
			:last_login, :created_at, :updated_at, :deleted_at)`

	if _, err := repo.db.NamedExecContext(ctx, query, repo.row(p)); err != nil {
		if uErr := repo.trapUniqueErr(err); uErr != err {
			return principal.Principal{}, uErr
		}
		return principal.Principal{}, errors.Wrap(err, "inserting principal")
	}
	return p, nil
}

func (repo principalRepository) GetPrincipal(ctx context.Context, filter principal.GetFilter) (principal.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principal WHERE deleted_at IS NULL`
	var args []interface{}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return principal.Principal{}, principal.ErrNotFound
		}
		query += ` AND id = $1`
		args = append(args, filter.ID)
	case filter.Email != "":
		query += ` AND lower(email) = lower($1)`
		args = append(args, filter.Email)
		if filter.Role != "" {
			query += ` AND role = $2`
			args = append(args, string(filter.Role))
		}
	default:
		return principal.Principal{}, principal.ErrNotFound
	}

	var row principalRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		return principal.Principal{}, repo.trapNoRowsErr(err, "finding principal")
	}
	return repo.unrow(row), nil
}

func (repo principalRepository) QueryPrincipals(ctx context.Context, filter *principal.QueryFilter, ordering []core.DBOrdering) ([]principal.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principal WHERE deleted_at IS NULL`
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			query += ` AND (first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR code ILIKE ?)`
			val := "%" + filter.Search + "%"
			args = append(args, val, val, val, val)
		}
		if len(filter.Roles) > 0 {
			query += ` AND role IN (?)`
			args = append(args, rolesToStrings(filter.Roles))
		}
		if len(filter.Statuses) > 0 {
			query += ` AND status IN (?)`
			args = append(args, statusesToStrings(filter.Statuses))
		}
		if !filter.CreatedFrom.IsZero() {
			query += ` AND created_at >= ?`
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			query += ` AND created_at <= ?`
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query += ` ORDER BY ` + strings.Join(orderList, ", ")
	} else {
		query += ` ORDER BY created_at ASC`
	}

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "expanding query")
	}
	query = repo.db.Rebind(query)

	var rows []principalRow
	if err := repo.db.SelectContext(ctx, &rows, query, inArgs...); err != nil {
		return nil, errors.Wrap(err, "querying principals")
	}

	principals := make([]principal.Principal, 0, len(rows))
	for _, row := range rows {
		principals = append(principals, repo.unrow(row))
	}
	return principals, nil
}

func (repo principalRepository) UpdatePasswordHash(ctx context.Context, id string, hash []byte, at time.Time) error {
	const query = `UPDATE principal SET password_hash = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`
	res, err := repo.db.ExecContext(ctx, query, hash, at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating password hash")
	}
	return repo.trapNoRowsAffected(res)
}

func (repo principalRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE principal SET last_login = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	res, err := repo.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating last login")
	}
	return repo.trapNoRowsAffected(res)
}

func (repo principalRepository) SoftDeletePrincipals(ctx context.Context, ids ...string) (int, error) {
	query, args, err := sqlx.In(
		`UPDATE principal SET deleted_at = ?, updated_at = ? WHERE id IN (?) AND deleted_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), ids,
	)
	if err != nil {
		return 0, errors.Wrap(err, "expanding query")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "soft-deleting principals")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting soft-deleted principals")
	}
	return int(cnt), nil
}

func (repo principalRepository) trapNoRowsAffected(res sql.Result) error {
	cnt, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if cnt == 0 {
		return principal.ErrNotFound
	}
	return nil
}

func rolesToStrings(roles []principal.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func statusesToStrings(statuses []principal.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
