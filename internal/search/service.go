package search

import (
	"context"

	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
)

// Service is the facade that tries the primary engine first and falls back
// to PostgreSQL full-text search. Either side may be nil.
type Service struct {
	primary  Engine
	fallback Searcher
	loader   RecordLoader
}

// RecordLoader reads every indexable record from the primary store.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]Record, error)
}

func NewService(primary Engine, fallback Searcher, loader RecordLoader) *Service {
	return &Service{primary: primary, fallback: fallback, loader: loader}
}

func (s *Service) Search(q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		logging.Logger.WithError(err).Warn("search: primary engine failed, falling back to pgfts")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		logging.Logger.WithError(err).Error("search: pgfts failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Index pushes a record to the engine. Fire-and-forget.
func (s *Service) Index(record Record) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := s.primary.Index([]Record{record}); err != nil {
			logging.Logger.WithFields(logrus.Fields{"type": record.Type, "id": record.ID, "error": err}).Warn("search: index record")
		}
	}()
}

// Delete removes a record from the engine. Fire-and-forget.
func (s *Service) Delete(typ ResultType, id string) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := s.primary.Delete(typ, id); err != nil {
			logging.Logger.WithFields(logrus.Fields{"type": typ, "id": id, "error": err}).Warn("search: delete record")
		}
	}()
}

// ReindexAll copies every public record from the store into the engine.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.primary == nil || !s.primary.Healthy() || s.loader == nil {
		return
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		logging.Logger.WithError(err).Warn("search: reindex load failed")
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.primary.Index(records); err != nil {
		logging.Logger.WithError(err).Warn("search: reindex failed")
		return
	}
	logging.Logger.WithField("records", len(records)).Info("search: reindexed")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
