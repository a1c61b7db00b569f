package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v62/github"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 << 10

// Kinds of fetch failure. Every error returned by this package matches
// exactly one of them with errors.Is.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrForbidden         = errors.New("access forbidden")
	ErrUnprocessable     = errors.New("unprocessable request")
	ErrUnexpectedStatus  = errors.New("unexpected status")
	ErrUnexpectedPayload = errors.New("unexpected payload")
	ErrNetwork           = errors.New("network error")
)

// FetchError describes a failed request to the GitHub API.
type FetchError struct {
	Kind       error
	Method     string
	URL        string
	StatusCode int
	Message    string
	// Body is the raw response body of a non-200 response, truncated to maxErrorBody.
	Body string
	Err  error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Method, e.URL, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newFetchError(kind error, req *http.Request, status int, message string, cause error) *FetchError {
	fe := &FetchError{Kind: kind, StatusCode: status, Message: message, Err: cause}
	if req != nil {
		fe.Method = req.Method
		fe.URL = req.URL.String()
	}
	return fe
}

// statusError maps a non-200 status to its kind.
func statusError(req *http.Request, status int, message string, cause error) *FetchError {
	kind := ErrUnexpectedStatus
	switch status {
	case http.StatusNotFound:
		kind = ErrNotFound
	case http.StatusForbidden:
		kind = ErrForbidden
	case http.StatusUnprocessableEntity:
		kind = ErrUnprocessable
	}
	return newFetchError(kind, req, status, message, cause)
}

// classify turns an error from go-github's Do into a *FetchError.
func classify(req *http.Request, resp *github.Response, err error) *FetchError {
	var (
		rateErr     *github.RateLimitError
		abuseErr    *github.AbuseRateLimitError
		responseErr *github.ErrorResponse
		acceptedErr *github.AcceptedError
	)
	switch {
	case errors.As(err, &rateErr):
		return newFetchError(ErrForbidden, req, http.StatusForbidden, rateErr.Message, err)
	case errors.As(err, &abuseErr):
		return newFetchError(ErrForbidden, req, http.StatusForbidden, abuseErr.Message, err)
	case errors.As(err, &responseErr):
		status, body := 0, ""
		if responseErr.Response != nil {
			status = responseErr.Response.StatusCode
			body = readBody(responseErr.Response)
		}
		message := responseErr.Message
		if message == "" {
			message = body
		}
		if message == "" && responseErr.Response != nil {
			message = responseErr.Response.Status
		}
		fe := statusError(req, status, message, err)
		fe.Body = body
		return fe
	case errors.As(err, &acceptedErr):
		return statusError(req, http.StatusAccepted, string(acceptedErr.Raw), err)
	case resp != nil && resp.StatusCode == http.StatusOK:
		// The request succeeded but the body did not decode.
		return newFetchError(ErrUnexpectedPayload, req, http.StatusOK, "", err)
	default:
		return newFetchError(ErrNetwork, req, 0, "", err)
	}
}

// readBody returns the response body go-github left on resp after checking it.
func readBody(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(body))
}
