package store

import (
	"context"
	"fmt"
	"time"
)

const submissionColumns = `
	id, title, description, link, category, image_key, status,
	submitted_by_id, submitted_by_name, submitted_by_email,
	COALESCE(reviewed_by, ''), reviewed_at, published_at, COALESCE(rejection_reason, ''),
	created_at, updated_at
`

func scanSubmission(kind Kind, row rowScanner) (Submission, error) {
	item := Submission{Kind: kind}
	if err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.Link,
		&item.Category,
		&item.ImageKey,
		&item.Status,
		&item.SubmittedByID,
		&item.SubmittedByName,
		&item.SubmittedByEmail,
		&item.ReviewedBy,
		&item.ReviewedAt,
		&item.PublishedAt,
		&item.RejectionReason,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Submission{}, err
	}
	return item, nil
}

// table returns the kind's table name; unknown kinds never reach SQL.
func table(kind Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown submission kind %q", kind)
	}
	return string(kind), nil
}

func (s *PostgresStore) InsertSubmission(ctx context.Context, item Submission) error {
	name, err := table(item.Kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+name+` (id, title, description, link, category, image_key, status,
			submitted_by_id, submitted_by_name, submitted_by_email, reviewed_by, reviewed_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
	`, item.ID, item.Title, item.Description, item.Link, item.Category, item.ImageKey, item.Status,
		item.SubmittedByID, item.SubmittedByName, item.SubmittedByEmail, item.ReviewedBy, item.ReviewedAt, item.PublishedAt)
	if err != nil {
		return fmt.Errorf("insert %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, kind Kind, id string) (Submission, error) {
	name, err := table(kind)
	if err != nil {
		return Submission{}, err
	}
	return scanSubmission(kind, s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM `+name+` WHERE id=$1`, id))
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, kind Kind, filter SubmissionFilter) ([]Submission, error) {
	name, err := table(kind)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	order := "created_at DESC"
	if filter.Status == StatusApproved {
		order = "COALESCE(published_at, reviewed_at, created_at) DESC"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM `+name+`
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR submitted_by_id = $2)
		  AND ($3 = '' OR category = $3)
		ORDER BY `+order+`
		LIMIT $4
	`, filter.Status, filter.SubmitterID, filter.Category, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	defer rows.Close()

	items := make([]Submission, 0)
	for rows.Next() {
		item, err := scanSubmission(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", name, err)
	}
	return items, nil
}

// UpdatePendingSubmission applies a submitter edit. It reports false when
// the item is missing, not owned by submitterID or no longer pending.
func (s *PostgresStore) UpdatePendingSubmission(ctx context.Context, kind Kind, id, submitterID string, edit SubmissionEdit) (bool, error) {
	name, err := table(kind)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE `+name+`
		SET title=$3, description=$4, link=$5, category=$6, image_key=$7, updated_at=NOW()
		WHERE id=$1 AND submitted_by_id=$2 AND status='pending'
	`, id, submitterID, edit.Title, edit.Description, edit.Link, edit.Category, edit.ImageKey)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s rows: %w", name, err)
	}
	return affected > 0, nil
}

// ApproveSubmission moves a pending item to approved. News items also get
// their publish timestamp.
func (s *PostgresStore) ApproveSubmission(ctx context.Context, kind Kind, id, reviewerID string, at time.Time) (bool, error) {
	name, err := table(kind)
	if err != nil {
		return false, err
	}
	var publishedAt *time.Time
	if kind == KindNews {
		publishedAt = &at
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE `+name+`
		SET status='approved', reviewed_by=$2, reviewed_at=$3, published_at=COALESCE($4, published_at), updated_at=NOW()
		WHERE id=$1 AND status='pending'
	`, id, reviewerID, at, publishedAt)
	if err != nil {
		return false, fmt.Errorf("approve %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve %s rows: %w", name, err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) RejectSubmission(ctx context.Context, kind Kind, id, reviewerID, reason string, at time.Time) (bool, error) {
	name, err := table(kind)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE `+name+`
		SET status='rejected', reviewed_by=$2, reviewed_at=$3, rejection_reason=$4, updated_at=NOW()
		WHERE id=$1 AND status='pending'
	`, id, reviewerID, at, reason)
	if err != nil {
		return false, fmt.Errorf("reject %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject %s rows: %w", name, err)
	}
	return affected > 0, nil
}
