package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
)

var indexByType = map[ResultType]string{
	ResultToolkit: "moai_toolkits",
	ResultNews:    "moai_news",
	ResultProject: "moai_projects",
}

var searchOrder = []ResultType{ResultToolkit, ResultNews, ResultProject}

// Meili implements Engine via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a client and configures indexes. An unreachable server
// is tolerated; a background loop keeps probing it.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		logging.Logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	searchable := []string{"title", "description", "category"}
	filterable := []interface{}{"category", "ownerId"}
	for _, typ := range searchOrder {
		uid := indexByType[typ]
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: uid, PrimaryKey: "id"}); err != nil {
			logging.Logger.WithFields(logrus.Fields{"index": uid, "error": err}).Debug("search: create index (may already exist)")
		}
		index := m.client.Index(uid)
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			logging.Logger.WithFields(logrus.Fields{"index": uid, "error": err}).Warn("search: update filterable attrs")
		}
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			logging.Logger.WithFields(logrus.Fields{"index": uid, "error": err}).Warn("search: update searchable attrs")
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				logging.Logger.Info("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	for _, typ := range searchOrder {
		if q.FilterType != "" && q.FilterType != typ {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              indexByType[typ],
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"title", "description"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		typ := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, typ))
		}
	}
	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	for typ, name := range indexByType {
		if name == uid {
			return typ
		}
	}
	return ""
}

func hitToResult(hit meili.Hit, typ ResultType) Result {
	return Result{
		Type:     typ,
		ID:       decodeString(hit, "id"),
		Title:    firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet:  firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description")),
		Category: decodeString(hit, "category"),
		OwnerID:  decodeString(hit, "ownerId"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// Index adds or replaces records, grouped by their index.
func (m *Meili) Index(records []Record) error {
	grouped := make(map[ResultType][]Record)
	for _, record := range records {
		if _, ok := indexByType[record.Type]; !ok {
			return fmt.Errorf("index record %s: unknown type %q", record.ID, record.Type)
		}
		grouped[record.Type] = append(grouped[record.Type], record)
	}
	for typ, batch := range grouped {
		if _, err := m.client.Index(indexByType[typ]).AddDocuments(batch, nil); err != nil {
			return fmt.Errorf("index %s: %w", typ, err)
		}
	}
	return nil
}

func (m *Meili) Delete(typ ResultType, id string) error {
	uid, ok := indexByType[typ]
	if !ok {
		return fmt.Errorf("delete record %s: unknown type %q", id, typ)
	}
	_, err := m.client.Index(uid).DeleteDocument(id, nil)
	return err
}
