// Package client is an HTTP client for the dictionary web API.
//
// Every call retries transport failures, 5xx answers and Busy results with
// exponential backoff. Failures come back as *Error; ResultOf extracts the
// server's result code when the server sent one.
package client
