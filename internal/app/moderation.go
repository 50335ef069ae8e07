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
	"moai/api/internal/metrics"
	"moai/api/internal/rbac"
	"moai/api/internal/search"
	"moai/api/internal/store"
	"moai/api/internal/util"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 10000
)

type SubmissionInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Category    string `json:"category"`
	ImageKey    string `json:"imageKey"`
}

func (in SubmissionInput) normalize() (store.SubmissionEdit, error) {
	edit := store.SubmissionEdit{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Link:        strings.TrimSpace(in.Link),
		Category:    strings.TrimSpace(in.Category),
		ImageKey:    strings.TrimSpace(in.ImageKey),
	}
	fields := map[string]string{}
	switch {
	case edit.Title == "":
		fields["title"] = "required"
	case utf8.RuneCountInString(edit.Title) > maxTitleLength:
		fields["title"] = "too long"
	}
	switch {
	case edit.Description == "":
		fields["description"] = "required"
	case utf8.RuneCountInString(edit.Description) > maxDescriptionLength:
		fields["description"] = "too long"
	}
	if edit.Link != "" {
		parsed, err := url.Parse(edit.Link)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			fields["link"] = "must be an http(s) URL"
		}
	}
	if len(fields) > 0 {
		return store.SubmissionEdit{}, validationError("Invalid submission", map[string]any{"fields": fields})
	}
	return edit, nil
}

// ParseKind maps a route segment to a moderated collection.
func ParseKind(value string) (store.Kind, bool) {
	kind := store.Kind(strings.ToLower(strings.TrimSpace(value)))
	return kind, kind.Valid()
}

func areaFor(kind store.Kind) rbac.Area {
	if kind == store.KindNews {
		return rbac.AreaNews
	}
	return rbac.AreaToolkits
}

func (s *Service) SubmitToolkit(ctx context.Context, session Session, input SubmissionInput) (map[string]any, error) {
	return s.Submit(ctx, session, store.KindToolkit, input)
}

func (s *Service) SubmitNews(ctx context.Context, session Session, input SubmissionInput) (map[string]any, error) {
	return s.Submit(ctx, session, store.KindNews, input)
}

// Submit records a new item. Area admins publish directly; everyone else
// enters the pending queue and the admins are notified.
func (s *Service) Submit(ctx context.Context, session Session, kind store.Kind, input SubmissionInput) (map[string]any, error) {
	if !kind.Valid() {
		return nil, notFound("Unknown collection")
	}
	edit, err := input.normalize()
	if err != nil {
		return nil, err
	}
	submitter, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	area := areaFor(kind)
	now := s.now().UTC()
	item := store.Submission{
		Kind:             kind,
		ID:               util.NewID(idPrefix(kind)),
		Title:            edit.Title,
		Description:      edit.Description,
		Link:             edit.Link,
		Category:         edit.Category,
		ImageKey:         edit.ImageKey,
		Status:           store.StatusPending,
		SubmittedByID:    submitter.ID,
		SubmittedByName:  submitter.DisplayName,
		SubmittedByEmail: submitter.Email,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// Admins publish directly
	autoApproved := s.policy.IsAdmin(area, submitter.Email)
	if autoApproved {
		item.Status = store.StatusApproved
		item.ReviewedBy = submitter.ID
		item.ReviewedAt = &now
		if kind == store.KindNews {
			item.PublishedAt = &now
		}
	}

	if err := s.store.InsertSubmission(ctx, item); err != nil {
		logging.Logger.WithFields(logrus.Fields{"kind": kind, "submitter_id": submitter.ID, "error": err}).Error("insert submission")
		return nil, err
	}

	if autoApproved {
		metrics.ModerationDecisions.WithLabelValues(string(kind), "auto_approved").Inc()
		s.indexSubmission(item)
	} else {
		s.NotifyAdmins(ctx, area, NotificationInput{
			Type:    submittedType(kind),
			Title:   "New " + kindLabel(kind) + " submission",
			Message: item.Title + " by " + item.SubmittedByName,
			Link:    "/admin/" + string(kind),
		})
	}
	return s.submissionView(item, true), nil
}

// UpdatePending lets the submitter edit an item until it is decided.
func (s *Service) UpdatePending(ctx context.Context, session Session, kind store.Kind, id string, input SubmissionInput) (map[string]any, error) {
	if !kind.Valid() {
		return nil, notFound("Unknown collection")
	}
	edit, err := input.normalize()
	if err != nil {
		return nil, err
	}
	ok, err := s.store.UpdatePendingSubmission(ctx, kind, id, session.UserID, edit)
	if err != nil {
		return nil, err
	}
	item, err := s.getSubmission(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	// Nothing changed; report why
	if !ok {
		if item.SubmittedByID != session.UserID {
			return nil, forbidden("Only the submitter can edit this item")
		}
		return nil, invalidTransition(item)
	}
	return s.submissionView(item, true), nil
}

func (s *Service) Approve(ctx context.Context, session Session, kind store.Kind, id string) (map[string]any, error) {
	if err := s.requireModerator(session, kind); err != nil {
		return nil, err
	}
	ok, err := s.store.ApproveSubmission(ctx, kind, id, session.UserID, s.now().UTC())
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"kind": kind, "id": id, "error": err}).Error("approve submission")
		return nil, err
	}
	item, err := s.getSubmission(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalidTransition(item)
	}
	metrics.ModerationDecisions.WithLabelValues(string(kind), store.StatusApproved).Inc()

	// Notify submitter
	_, _ = s.CreateNotification(ctx, NotificationInput{
		UserID:  item.SubmittedByID,
		Type:    approvedType(kind),
		Title:   "Your " + kindLabel(kind) + " was approved",
		Message: item.Title,
		Link:    "/" + string(kind) + "/" + item.ID,
	})
	s.indexSubmission(item)
	return s.submissionView(item, true), nil
}

// Reject requires a reason; a blank one leaves the item untouched.
func (s *Service) Reject(ctx context.Context, session Session, kind store.Kind, id, reason string) (map[string]any, error) {
	if err := s.requireModerator(session, kind); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("A rejection reason is required", map[string]any{"fields": map[string]string{"reason": "required"}})
	}
	ok, err := s.store.RejectSubmission(ctx, kind, id, session.UserID, reason, s.now().UTC())
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"kind": kind, "id": id, "error": err}).Error("reject submission")
		return nil, err
	}
	item, err := s.getSubmission(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalidTransition(item)
	}
	metrics.ModerationDecisions.WithLabelValues(string(kind), store.StatusRejected).Inc()

	_, _ = s.CreateNotification(ctx, NotificationInput{
		UserID:  item.SubmittedByID,
		Type:    rejectedType(kind),
		Title:   "Your " + kindLabel(kind) + " was not approved",
		Message: item.Title + ": " + reason,
		Link:    "/" + string(kind) + "/mine",
	})
	return s.submissionView(item, true), nil
}

// ListApproved is the public browse list, newest first.
func (s *Service) ListApproved(ctx context.Context, kind store.Kind, category string, limit int) ([]map[string]any, error) {
	if !kind.Valid() {
		return nil, notFound("Unknown collection")
	}
	items, err := s.store.ListSubmissions(ctx, kind, store.SubmissionFilter{
		Status:   store.StatusApproved,
		Category: strings.TrimSpace(category),
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	return s.submissionViews(items, false), nil
}

func (s *Service) ListPending(ctx context.Context, session Session, kind store.Kind) ([]map[string]any, error) {
	if err := s.requireModerator(session, kind); err != nil {
		return nil, err
	}
	items, err := s.store.ListSubmissions(ctx, kind, store.SubmissionFilter{Status: store.StatusPending})
	if err != nil {
		return nil, err
	}
	return s.submissionViews(items, true), nil
}

func (s *Service) ListMySubmissions(ctx context.Context, session Session, kind store.Kind) ([]map[string]any, error) {
	if !kind.Valid() {
		return nil, notFound("Unknown collection")
	}
	items, err := s.store.ListSubmissions(ctx, kind, store.SubmissionFilter{SubmitterID: session.UserID})
	if err != nil {
		return nil, err
	}
	return s.submissionViews(items, true), nil
}

// GetSubmission shows approved items to anyone. Undecided and rejected
// items are only visible to their submitter and the area admins.
func (s *Service) GetSubmission(ctx context.Context, viewer *Session, kind store.Kind, id string) (map[string]any, error) {
	if !kind.Valid() {
		return nil, notFound("Unknown collection")
	}
	item, err := s.getSubmission(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	privileged := viewer != nil && (viewer.UserID == item.SubmittedByID || s.IsAdmin(*viewer, areaFor(kind)))
	if item.Status != store.StatusApproved && !privileged {
		return nil, notFound(kindLabel(kind) + " not found")
	}
	return s.submissionView(item, privileged), nil
}

func (s *Service) requireModerator(session Session, kind store.Kind) error {
	if !kind.Valid() {
		return notFound("Unknown collection")
	}
	if !s.Can(session, areaFor(kind), rbac.ActionApprove) {
		return forbidden("Admin access required")
	}
	return nil
}

func (s *Service) getSubmission(ctx context.Context, kind store.Kind, id string) (store.Submission, error) {
	item, err := s.store.GetSubmission(ctx, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Submission{}, notFound(kindLabel(kind) + " not found")
		}
		return store.Submission{}, err
	}
	return item, nil
}

func (s *Service) indexSubmission(item store.Submission) {
	if s.search == nil || item.Status != store.StatusApproved {
		return
	}
	typ := search.ResultToolkit
	if item.Kind == store.KindNews {
		typ = search.ResultNews
	}
	s.search.Index(search.Record{
		ID:          item.ID,
		Type:        typ,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		OwnerID:     item.SubmittedByID,
	})
}

func invalidTransition(item store.Submission) *DomainError {
	return domainError(http.StatusConflict, "INVALID_TRANSITION", "Item is already "+item.Status, map[string]any{
		"status": item.Status,
	})
}

func idPrefix(kind store.Kind) string {
	if kind == store.KindNews {
		return "nws"
	}
	return "tlk"
}

func kindLabel(kind store.Kind) string {
	if kind == store.KindNews {
		return "news item"
	}
	return "toolkit"
}

func submittedType(kind store.Kind) string {
	if kind == store.KindNews {
		return NotificationNewsSubmitted
	}
	return NotificationToolkitSubmitted
}

func approvedType(kind store.Kind) string {
	if kind == store.KindNews {
		return NotificationNewsApproved
	}
	return NotificationToolkitApproved
}

func rejectedType(kind store.Kind) string {
	if kind == store.KindNews {
		return NotificationNewsRejected
	}
	return NotificationToolkitRejected
}

func (s *Service) submissionViews(items []store.Submission, privileged bool) []map[string]any {
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, s.submissionView(item, privileged))
	}
	return views
}

func (s *Service) submissionView(item store.Submission, privileged bool) map[string]any {
	submittedBy := map[string]any{
		"id":   item.SubmittedByID,
		"name": item.SubmittedByName,
	}
	if privileged {
		submittedBy["email"] = item.SubmittedByEmail
	}
	view := map[string]any{
		"id":          item.ID,
		"kind":        string(item.Kind),
		"title":       item.Title,
		"description": item.Description,
		"link":        item.Link,
		"category":    item.Category,
		"imageKey":    item.ImageKey,
		"imageUrl":    s.media.PublicURL(item.ImageKey),
		"status":      item.Status,
		"submittedBy": submittedBy,
		"reviewedAt":  formatTimePtr(item.ReviewedAt),
		"publishedAt": formatTimePtr(item.PublishedAt),
		"createdAt":   formatTime(item.CreatedAt),
		"updatedAt":   formatTime(item.UpdatedAt),
	}
	if privileged {
		view["reviewedBy"] = item.ReviewedBy
		view["rejectionReason"] = item.RejectionReason
	}
	return view
}
