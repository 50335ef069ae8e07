package app

import (
	"context"
	"database/sql"
	"errors"

	"moai/api/internal/store"
	"moai/api/internal/util"
)

// AddFavorite is idempotent: favoriting twice returns the existing row.
func (s *Service) AddFavorite(ctx context.Context, userID, toolkitID string) (map[string]any, error) {
	if _, err := s.publishedToolkit(ctx, toolkitID); err != nil {
		return nil, err
	}
	favorite, err := s.store.InsertFavorite(ctx, store.Favorite{
		ID:        util.NewID("fav"),
		UserID:    userID,
		ToolkitID: toolkitID,
	})
	if err != nil {
		return nil, err
	}
	return favoriteView(favorite), nil
}

func (s *Service) RemoveFavorite(ctx context.Context, userID, favoriteID string) error {
	ok, err := s.store.DeleteFavorite(ctx, favoriteID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("Favorite not found")
	}
	return nil
}

// CheckIsFavorited returns the favorite id, or "" when the toolkit is not
// in the user's favorites.
func (s *Service) CheckIsFavorited(ctx context.Context, userID, toolkitID string) (string, error) {
	favorite, err := s.store.GetFavorite(ctx, userID, toolkitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return favorite.ID, nil
}

// ListFavorites returns the user's favorites with the toolkit summary.
// Toolkits that are gone or no longer published are left out.
func (s *Service) ListFavorites(ctx context.Context, userID string) ([]map[string]any, error) {
	favorites, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(favorites))
	for _, favorite := range favorites {
		toolkit, err := s.store.GetSubmission(ctx, store.KindToolkit, favorite.ToolkitID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		if toolkit.Status != store.StatusApproved {
			continue
		}
		view := favoriteView(favorite)
		view["toolkit"] = s.submissionView(toolkit, false)
		items = append(items, view)
	}
	return items, nil
}

func favoriteView(favorite store.Favorite) map[string]any {
	return map[string]any{
		"id":        favorite.ID,
		"toolkitId": favorite.ToolkitID,
		"createdAt": formatTime(favorite.CreatedAt),
	}
}
