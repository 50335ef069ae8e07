package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, link, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`, item.ID, item.UserID, item.Type, item.Title, item.Message, item.Link, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, link, read, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.UserID, &item.Type, &item.Title, &item.Message, &item.Link, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read=FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE user_id=$1 AND read=FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return int(affected), nil
}

// DeleteNotifications removes the given notifications owned by userID. An
// empty id list removes all of them.
func (s *PostgresStore) DeleteNotifications(ctx context.Context, userID string, ids []string) (int, error) {
	query := `DELETE FROM notifications WHERE user_id=$1 AND id = ANY($2)`
	args := []any{userID, ids}
	if len(ids) == 0 {
		query = `DELETE FROM notifications WHERE user_id=$1`
		args = []any{userID}
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete notifications rows: %w", err)
	}
	return int(affected), nil
}

const reviewColumns = `id, user_id, user_name, toolkit_id, rating, comment, created_at, updated_at`

func scanReview(row rowScanner) (Review, error) {
	var item Review
	err := row.Scan(&item.ID, &item.UserID, &item.UserName, &item.ToolkitID, &item.Rating, &item.Comment, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// UpsertReview writes the user's review for a toolkit. The (user, toolkit)
// pair is unique, so a second insert updates the existing row.
func (s *PostgresStore) UpsertReview(ctx context.Context, item Review) (Review, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO reviews (id, user_id, user_name, toolkit_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, toolkit_id) DO UPDATE
		SET rating=EXCLUDED.rating, comment=EXCLUDED.comment, user_name=EXCLUDED.user_name, updated_at=NOW()
		RETURNING `+reviewColumns,
		item.ID, item.UserID, item.UserName, item.ToolkitID, item.Rating, item.Comment)
	saved, err := scanReview(row)
	if err != nil {
		return Review{}, fmt.Errorf("upsert review: %w", err)
	}
	return saved, nil
}

// UpdateReview returns sql.ErrNoRows unless reviewID is userID's review of toolkitID.
func (s *PostgresStore) UpdateReview(ctx context.Context, reviewID, userID, toolkitID string, rating int, comment string) (Review, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE reviews SET rating=$4, comment=$5, updated_at=NOW()
		WHERE id=$1 AND user_id=$2 AND toolkit_id=$3
		RETURNING `+reviewColumns,
		reviewID, userID, toolkitID, rating, comment)
	return scanReview(row)
}

func (s *PostgresStore) GetUserReview(ctx context.Context, userID, toolkitID string) (Review, error) {
	return scanReview(s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE user_id=$1 AND toolkit_id=$2`, userID, toolkitID))
}

func (s *PostgresStore) ListReviews(ctx context.Context, toolkitID string) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reviewColumns+` FROM reviews WHERE toolkit_id=$1 ORDER BY created_at DESC
	`, toolkitID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	items := make([]Review, 0)
	for rows.Next() {
		item, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteReview(ctx context.Context, reviewID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE id=$1 AND user_id=$2`, reviewID, userID)
	if err != nil {
		return false, fmt.Errorf("delete review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete review rows: %w", err)
	}
	return affected > 0, nil
}

// InsertFavorite is idempotent per (user, toolkit) and returns the stored row.
func (s *PostgresStore) InsertFavorite(ctx context.Context, item Favorite) (Favorite, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO favorites (id, user_id, toolkit_id) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, toolkit_id) DO NOTHING
	`, item.ID, item.UserID, item.ToolkitID); err != nil {
		return Favorite{}, fmt.Errorf("insert favorite: %w", err)
	}
	return s.GetFavorite(ctx, item.UserID, item.ToolkitID)
}

func (s *PostgresStore) GetFavorite(ctx context.Context, userID, toolkitID string) (Favorite, error) {
	var item Favorite
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, toolkit_id, created_at FROM favorites WHERE user_id=$1 AND toolkit_id=$2
	`, userID, toolkitID).Scan(&item.ID, &item.UserID, &item.ToolkitID, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) DeleteFavorite(ctx context.Context, favoriteID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE id=$1 AND user_id=$2`, favoriteID, userID)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete favorite rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListFavorites(ctx context.Context, userID string) ([]Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, toolkit_id, created_at FROM favorites WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	items := make([]Favorite, 0)
	for rows.Next() {
		var item Favorite
		if err := rows.Scan(&item.ID, &item.UserID, &item.ToolkitID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return items, nil
}
