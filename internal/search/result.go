package search

import (
	"fmt"
	"time"
)

// Hit is a single search result.
type Hit struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Score       float64   `json:"score,omitempty"`
}

// Response is what one engine returned for one query.
type Response struct {
	Query    string        `json:"query"`
	Hits     []Hit         `json:"hits"`
	Engine   string        `json:"engine"`
	Duration time.Duration `json:"duration"`
}

// CombinedResponse merges the responses of every engine that answered.
type CombinedResponse struct {
	Query     string              `json:"query"`
	Responses map[string]Response `json:"responses"`
	Combined  []Hit               `json:"combined"`
	Duration  time.Duration       `json:"duration"`
}

// Result is the outcome of Provider.Search: candidate URLs, or the error that
// prevented any from being found.
type Result struct {
	URLs []string
	Err  error
}

// ErrorPrefix starts the single link entry reported for a failed search.
const ErrorPrefix = "Error during search: "

// Failed reports whether the search produced no usable URLs because of an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Links returns the URLs, or for a failed search a single entry describing
// the error.
func (r Result) Links() []string {
	if r.Err != nil {
		return []string{fmt.Sprintf("%s%v", ErrorPrefix, r.Err)}
	}
	out := make([]string, len(r.URLs))
	copy(out, r.URLs)
	return out
}
