package classify

import "fmt"

// HTTPError is returned by the fetch and provider layers when a request
// completes with a non-success status. Carrying the status code lets the
// classifier decide by code instead of message scraping.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d (%s) for %s", e.StatusCode, e.Status, e.URL)
}
