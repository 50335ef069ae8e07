package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
	"moai/api/internal/media"
	"moai/api/internal/search"
	"moai/api/internal/store"
	"moai/api/internal/util"
)

const (
	maxBioLength  = 1000
	maxTagCount   = 10
	projectsLimit = 50
)

var contactMethods = map[string]struct{}{
	"email":   {},
	"phone":   {},
	"message": {},
	"website": {},
}

// ProfileInput is a partial update; nil fields keep their value.
type ProfileInput struct {
	DisplayName    *string  `json:"displayName"`
	Bio            *string  `json:"bio"`
	AvatarKey      *string  `json:"avatarKey"`
	Location       *string  `json:"location"`
	Phone          *string  `json:"phone"`
	EmailPublic    *bool    `json:"emailPublic"`
	PhonePublic    *bool    `json:"phonePublic"`
	LocationPublic *bool    `json:"locationPublic"`
	ContactMethods []string `json:"contactMethods"`
}

type ProjectInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageKey    string   `json:"imageKey"`
	Tags        []string `json:"tags"`
}

// GetProfile applies the owner's privacy flags unless the owner is looking.
func (s *Service) GetProfile(ctx context.Context, viewer *Session, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("User not found")
		}
		return nil, err
	}
	return s.profileView(user, viewer != nil && viewer.UserID == user.ID), nil
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input ProfileInput) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > maxTitleLength {
			fields["displayName"] = "required, at most 200 characters"
		}
		user.DisplayName = name
	}
	if input.Bio != nil {
		bio := strings.TrimSpace(*input.Bio)
		if utf8.RuneCountInString(bio) > maxBioLength {
			fields["bio"] = "too long"
		}
		user.Bio = bio
	}
	if input.AvatarKey != nil {
		key := strings.TrimSpace(*input.AvatarKey)
		if key != "" && !ownsObject(key, media.PurposeAvatar, user.ID) {
			fields["avatarKey"] = "not an upload of this user"
		}
		user.AvatarKey = key
	}
	if input.Location != nil {
		user.Location = strings.TrimSpace(*input.Location)
	}
	if input.Phone != nil {
		user.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.EmailPublic != nil {
		user.EmailPublic = *input.EmailPublic
	}
	if input.PhonePublic != nil {
		user.PhonePublic = *input.PhonePublic
	}
	if input.LocationPublic != nil {
		user.LocationPublic = *input.LocationPublic
	}
	if input.ContactMethods != nil {
		methods := make([]string, 0, len(input.ContactMethods))
		seen := map[string]bool{}
		for _, method := range input.ContactMethods {
			method = strings.ToLower(strings.TrimSpace(method))
			if _, ok := contactMethods[method]; !ok {
				fields["contactMethods"] = "must be email, phone, message or website"
				continue
			}
			if !seen[method] {
				seen[method] = true
				methods = append(methods, method)
			}
		}
		user.ContactMethods = methods
	}
	if len(fields) > 0 {
		return nil, validationError("Invalid profile", map[string]any{"fields": fields})
	}

	if err := s.store.UpdateProfile(ctx, user); err != nil {
		logging.Logger.WithFields(logrus.Fields{"user_id": user.ID, "error": err}).Error("update profile")
		return nil, err
	}
	return s.profileView(user, true), nil
}

func (s *Service) BlockUser(ctx context.Context, session Session, blockedID string) error {
	blockedID = strings.TrimSpace(blockedID)
	if blockedID == "" || blockedID == session.UserID {
		return validationError("Cannot block this user", nil)
	}
	if _, err := s.store.GetUserByID(ctx, blockedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("User not found")
		}
		return err
	}
	return s.store.AddBlockedUser(ctx, session.UserID, blockedID)
}

func (s *Service) UnblockUser(ctx context.Context, session Session, blockedID string) error {
	return s.store.RemoveBlockedUser(ctx, session.UserID, strings.TrimSpace(blockedID))
}

// CreateUpload signs a direct-to-storage image upload for the session user.
func (s *Service) CreateUpload(ctx context.Context, session Session, purpose, contentType string) (media.Upload, error) {
	upload, err := s.media.PresignUpload(ctx, session.UserID, media.Purpose(strings.TrimSpace(purpose)), contentType)
	switch {
	case errors.Is(err, media.ErrNotConfigured):
		return media.Upload{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil)
	case errors.Is(err, media.ErrInvalidUpload):
		return media.Upload{}, validationError(err.Error(), nil)
	case err != nil:
		return media.Upload{}, err
	}
	return upload, nil
}

func (s *Service) CreateProject(ctx context.Context, session Session, input ProjectInput) (map[string]any, error) {
	owner, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	imageKey := strings.TrimSpace(input.ImageKey)

	fields := map[string]string{}
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		fields["title"] = "required, at most 200 characters"
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		fields["description"] = "too long"
	}
	if imageKey != "" && !ownsObject(imageKey, media.PurposeProject, owner.ID) {
		fields["imageKey"] = "not an upload of this user"
	}
	tags := make([]string, 0, len(input.Tags))
	for _, tag := range input.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > maxTagCount {
		fields["tags"] = "too many"
	}
	if len(fields) > 0 {
		return nil, validationError("Invalid project", map[string]any{"fields": fields})
	}

	now := s.now().UTC()
	project := store.Project{
		ID:          util.NewID("prj"),
		OwnerID:     owner.ID,
		OwnerName:   owner.DisplayName,
		Title:       title,
		Description: description,
		ImageKey:    imageKey,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		logging.Logger.WithFields(logrus.Fields{"owner_id": owner.ID, "error": err}).Error("insert project")
		return nil, err
	}
	if s.search != nil {
		s.search.Index(search.Record{
			ID:          project.ID,
			Type:        search.ResultProject,
			Title:       project.Title,
			Description: project.Description,
			OwnerID:     project.OwnerID,
		})
	}
	return s.projectView(project), nil
}

// ListProjects lists every project, or one owner's when ownerID is set.
func (s *Service) ListProjects(ctx context.Context, ownerID string) ([]map[string]any, error) {
	projects, err := s.store.ListProjects(ctx, strings.TrimSpace(ownerID), projectsLimit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		items = append(items, s.projectView(project))
	}
	return items, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Project not found")
		}
		return nil, err
	}
	return s.projectView(project), nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) error {
	ok, err := s.store.DeleteProject(ctx, projectID, session.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("Project not found")
	}
	if s.search != nil {
		s.search.Delete(search.ResultProject, projectID)
	}
	return nil
}

func ownsObject(key string, purpose media.Purpose, ownerID string) bool {
	return strings.HasPrefix(key, string(purpose)+"/"+url.PathEscape(ownerID)+"/")
}

func (s *Service) profileView(user store.User, owner bool) map[string]any {
	view := map[string]any{
		"id":             user.ID,
		"displayName":    user.DisplayName,
		"bio":            user.Bio,
		"avatarKey":      user.AvatarKey,
		"avatarUrl":      s.media.PublicURL(user.AvatarKey),
		"contactMethods": user.ContactMethods,
		"createdAt":      formatTime(user.CreatedAt),
	}
	if owner || user.EmailPublic {
		view["email"] = user.Email
	}
	if owner || user.PhonePublic {
		view["phone"] = user.Phone
	}
	if owner || user.LocationPublic {
		view["location"] = user.Location
	}
	if owner {
		view["emailPublic"] = user.EmailPublic
		view["phonePublic"] = user.PhonePublic
		view["locationPublic"] = user.LocationPublic
		view["blockedUserIds"] = user.BlockedUserIDs
		view["emailVerified"] = user.IsEmailVerified
	}
	return view
}

func (s *Service) projectView(project store.Project) map[string]any {
	return map[string]any{
		"id":          project.ID,
		"ownerId":     project.OwnerID,
		"ownerName":   project.OwnerName,
		"title":       project.Title,
		"description": project.Description,
		"imageKey":    project.ImageKey,
		"imageUrl":    s.media.PublicURL(project.ImageKey),
		"tags":        project.Tags,
		"createdAt":   formatTime(project.CreatedAt),
	}
}
