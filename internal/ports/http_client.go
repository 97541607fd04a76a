package ports

import "net/http"

// HTTPClient is the outbound HTTP seam of the transfer adapters. The
// standard *http.Client satisfies it; tests substitute httptest-backed or
// scripted clients.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
