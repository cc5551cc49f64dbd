package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"dupulse.app/internal/auth"
)

var _ auth.MembershipStore = (*Store)(nil)

// HasAdminRecord reports whether an admin row exists for uid.
func (s *Store) HasAdminRecord(ctx context.Context, uid string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errNoDB
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from admin where uid = $1)`, uid).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GrantAdmin inserts an admin row for uid.
func (s *Store) GrantAdmin(ctx context.Context, uid, email string) (auth.AdminRecord, error) {
	if s == nil || s.db == nil {
		return auth.AdminRecord{}, errNoDB
	}
	var (
		rec  auth.AdminRecord
		mail sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into admin (uid, email)
		values ($1, nullif($2, ''))
		returning uid, email, created_at
	`, uid, strings.TrimSpace(strings.ToLower(email)))
	if err := row.Scan(&rec.UID, &mail, &rec.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.AdminRecord{}, ErrConflict
		}
		return auth.AdminRecord{}, err
	}
	rec.Email = mail.String
	return rec, nil
}

// RevokeAdmin deletes the admin row for uid.
func (s *Store) RevokeAdmin(ctx context.Context, uid string) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from admin where uid = $1`, uid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAdmin returns the admin row for uid.
func (s *Store) GetAdmin(ctx context.Context, uid string) (auth.AdminRecord, error) {
	if s == nil || s.db == nil {
		return auth.AdminRecord{}, errNoDB
	}
	var (
		rec  auth.AdminRecord
		mail sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select uid, email, created_at
		from admin
		where uid = $1
	`, uid).Scan(&rec.UID, &mail, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.AdminRecord{}, ErrNotFound
	}
	if err != nil {
		return auth.AdminRecord{}, err
	}
	rec.Email = mail.String
	return rec, nil
}

// ListAdmins returns all admin rows ordered by grant time.
func (s *Store) ListAdmins(ctx context.Context) ([]auth.AdminRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select uid, email, created_at
		from admin
		order by created_at, uid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.AdminRecord
	for rows.Next() {
		var (
			rec  auth.AdminRecord
			mail sql.NullString
		)
		if err := rows.Scan(&rec.UID, &mail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Email = mail.String
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountAdmins returns the number of admin rows.
func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errNoDB
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `select count(*) from admin`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
