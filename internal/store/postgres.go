package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `
	id, display_name, email, password_hash, is_email_verified, COALESCE(verification_token, ''), verification_expires_at,
	bio, avatar_key, location, phone, email_public, phone_public, location_public,
	COALESCE(array_to_json(contact_methods)::text, '[]'), COALESCE(array_to_json(blocked_user_ids)::text, '[]'),
	created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		user    User
		methods string
		blocked string
	)
	if err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.Bio,
		&user.AvatarKey,
		&user.Location,
		&user.Phone,
		&user.EmailPublic,
		&user.PhonePublic,
		&user.LocationPublic,
		&methods,
		&blocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return User{}, err
	}
	user.ContactMethods = decodeTextArray(methods)
	user.BlockedUserIDs = decodeTextArray(blocked)
	return user, nil
}

func decodeTextArray(raw string) []string {
	items := make([]string, 0)
	if raw == "" || raw == "null" {
		return items
	}
	_ = json.Unmarshal([]byte(raw), &items)
	return items
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token, contact_methods)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, user.ID, user.DisplayName, strings.TrimSpace(user.Email), user.PasswordHash, user.IsEmailVerified, user.VerificationToken, nonNilStrings(user.ContactMethods))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

func (s *PostgresStore) ListUsersByEmails(ctx context.Context, emails []string) ([]User, error) {
	if len(emails) == 0 {
		return []User{}, nil
	}
	lowered := make([]string, 0, len(emails))
	for _, email := range emails {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(email)))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = ANY($1)`, lowered)
	if err != nil {
		return nil, fmt.Errorf("list users by email: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, user User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET display_name=$2, bio=$3, avatar_key=$4, location=$5, phone=$6,
			email_public=$7, phone_public=$8, location_public=$9, contact_methods=$10, updated_at=NOW()
		WHERE id=$1
	`, user.ID, user.DisplayName, user.Bio, user.AvatarKey, user.Location, user.Phone,
		user.EmailPublic, user.PhonePublic, user.LocationPublic, nonNilStrings(user.ContactMethods))
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) AddBlockedUser(ctx context.Context, userID, blockedID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET blocked_user_ids = array_append(blocked_user_ids, $2::text), updated_at=NOW()
		WHERE id=$1 AND NOT ($2 = ANY(blocked_user_ids))
	`, userID, blockedID)
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveBlockedUser(ctx context.Context, userID, blockedID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET blocked_user_ids = array_remove(blocked_user_ids, $2::text), updated_at=NOW()
		WHERE id=$1
	`, userID, blockedID)
	if err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return User{}, err
	}
	return s.GetUserByID(ctx, userID)
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, owner_name, title, description, image_key, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, project.ID, project.OwnerID, project.OwnerName, project.Title, project.Description, project.ImageKey, nonNilStrings(project.Tags))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

const projectColumns = `id, owner_id, owner_name, title, description, image_key, COALESCE(array_to_json(tags)::text, '[]'), created_at, updated_at`

func scanProject(row rowScanner) (Project, error) {
	var (
		item Project
		tags string
	)
	if err := row.Scan(&item.ID, &item.OwnerID, &item.OwnerName, &item.Title, &item.Description, &item.ImageKey, &tags, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Project{}, err
	}
	item.Tags = decodeTextArray(tags)
	return item, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, projectID))
}

func (s *PostgresStore) ListProjects(ctx context.Context, ownerID string, limit int) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID, ownerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1 AND owner_id=$2`, projectID, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete project rows: %w", err)
	}
	return affected > 0, nil
}
