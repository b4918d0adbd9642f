// Package http provides the HTTP client used to fetch images.
//
// This package handles:
//   - Connection pooling for high parallelism
//   - A cap on concurrently open fetches, separate from the worker count
//   - A fixed per-request timeout
//   - Per-origin request headers selected by URL prefix
//   - Status code classification into typed errors
//
// The client never retries on its own. A failed fetch is returned as a
// *FetchError and the caller decides whether to try again.
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    Timeout:       8 * time.Second,
//	    MaxConcurrent: 512,
//	    Headers: http.HeaderRules{
//	        Rules: []http.HeaderRule{
//	            {Prefix: "http://img.example.com/", Headers: map[string]string{"Referer": "http://www.example.com"}},
//	        },
//	        Default: map[string]string{"User-Agent": http.DefaultUserAgent},
//	    },
//	})
//
//	body, err := client.Fetch(ctx, url)
package http
