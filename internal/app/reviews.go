package app

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
	"moai/api/internal/store"
	"moai/api/internal/util"
)

const maxCommentLength = 2000

type ReviewInput struct {
	ReviewID string `json:"reviewId"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

// SaveReview updates existingID when given, which must be the user's review
// of this toolkit. Otherwise it writes the user's
// review of the toolkit. A user has at most one review per toolkit, so a
// second write without an id replaces the first.
func (s *Service) SaveReview(ctx context.Context, userID, toolkitID, existingID string, rating int, comment string) (map[string]any, error) {
	if rating < 1 || rating > 5 {
		return nil, validationError("Rating must be between 1 and 5", map[string]any{"fields": map[string]string{"rating": "out of range"}})
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, validationError("Comment is too long", map[string]any{"fields": map[string]string{"comment": "too long"}})
	}
	if _, err := s.publishedToolkit(ctx, toolkitID); err != nil {
		return nil, err
	}

	// Explicit edit of an existing review
	if existingID = strings.TrimSpace(existingID); existingID != "" {
		review, err := s.store.UpdateReview(ctx, existingID, userID, toolkitID, rating, comment)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, notFound("Review not found")
			}
			logging.Logger.WithFields(logrus.Fields{"review_id": existingID, "error": err}).Error("update review")
			return nil, err
		}
		return reviewView(review), nil
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	review, err := s.store.UpsertReview(ctx, store.Review{
		ID:        util.NewID("rev"),
		UserID:    user.ID,
		UserName:  user.DisplayName,
		ToolkitID: toolkitID,
		Rating:    rating,
		Comment:   comment,
	})
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"toolkit_id": toolkitID, "user_id": userID, "error": err}).Error("save review")
		return nil, err
	}
	return reviewView(review), nil
}

// GetUserReview returns nil when the user has not reviewed the toolkit.
func (s *Service) GetUserReview(ctx context.Context, userID, toolkitID string) (map[string]any, error) {
	review, err := s.store.GetUserReview(ctx, userID, toolkitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return reviewView(review), nil
}

func (s *Service) ListToolkitReviews(ctx context.Context, toolkitID string) ([]map[string]any, error) {
	reviews, err := s.store.ListReviews(ctx, toolkitID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(reviews))
	for _, review := range reviews {
		items = append(items, reviewView(review))
	}
	return items, nil
}

// GetToolkitAverageRating is the mean rating to one decimal place.
func (s *Service) GetToolkitAverageRating(ctx context.Context, toolkitID string) (map[string]any, error) {
	reviews, err := s.store.ListReviews(ctx, toolkitID)
	if err != nil {
		return nil, err
	}
	ratings := make([]int, 0, len(reviews))
	for _, review := range reviews {
		ratings = append(ratings, review.Rating)
	}
	average, count := averageRating(ratings)
	return map[string]any{"average": average, "count": count}, nil
}

func averageRating(ratings []int) (float64, int) {
	if len(ratings) == 0 {
		return 0, 0
	}
	sum := 0
	for _, rating := range ratings {
		sum += rating
	}
	mean := float64(sum) / float64(len(ratings))
	return math.Round(mean*10) / 10, len(ratings)
}

func (s *Service) DeleteReview(ctx context.Context, userID, reviewID string) error {
	ok, err := s.store.DeleteReview(ctx, reviewID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("Review not found")
	}
	return nil
}

// publishedToolkit loads a toolkit that can be reviewed or favorited.
func (s *Service) publishedToolkit(ctx context.Context, toolkitID string) (store.Submission, error) {
	item, err := s.getSubmission(ctx, store.KindToolkit, toolkitID)
	if err != nil {
		return store.Submission{}, err
	}
	if item.Status != store.StatusApproved {
		return store.Submission{}, notFound("toolkit not found")
	}
	return item, nil
}

func reviewView(review store.Review) map[string]any {
	return map[string]any{
		"id":        review.ID,
		"userId":    review.UserID,
		"userName":  review.UserName,
		"toolkitId": review.ToolkitID,
		"rating":    review.Rating,
		"comment":   review.Comment,
		"createdAt": formatTime(review.CreatedAt),
		"updatedAt": formatTime(review.UpdatedAt),
	}
}
