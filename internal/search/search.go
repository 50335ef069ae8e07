package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultToolkit ResultType = "toolkit"
	ResultNews    ResultType = "news"
	ResultProject ResultType = "project"
)

func (t ResultType) Valid() bool {
	return t == ResultToolkit || t == ResultNews || t == ResultProject
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Category string     `json:"category,omitempty"`
	OwnerID  string     `json:"ownerId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Engine is a searcher that also maintains its own index.
type Engine interface {
	Searcher
	Index(records []Record) error
	Delete(typ ResultType, id string) error
}

// Record is the data indexed for an approved toolkit, a published news item
// or a project. Only public content is ever indexed.
type Record struct {
	ID          string     `json:"id"`
	Type        ResultType `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	OwnerID     string     `json:"ownerId"`
}
