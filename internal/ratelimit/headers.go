package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// SetHeaders attaches the standard rate-limit headers for this result. On a
// denial, Retry-After is included so clients can back off without parsing
// the reset timestamp.
func (r Result) SetHeaders(h http.Header) {
	if r.Limit <= 0 {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	if !r.Reset.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(r.Reset.Unix(), 10))
	}
	if !r.Allowed {
		retry := int64(r.RetryAfter / time.Second)
		if retry < 1 {
			retry = 1
		}
		h.Set("Retry-After", strconv.FormatInt(retry, 10))
	}
}
