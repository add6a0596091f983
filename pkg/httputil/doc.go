// Package httputil provides the retry primitive used by registry lookups and
// downloads.
//
// [Retry] runs a function with exponential backoff, retrying only errors
// wrapped in [RetryableError]. Callers decide what is retryable, usually with
// [IsTransient] (timeouts, connection resets, DNS failures) on requests whose
// method passes [IsIdempotent]:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    resp, err := client.Do(req)
//	    if httputil.IsTransient(err) && httputil.IsIdempotent(req.Method) {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    ...
//	})
//
// HTTP status failures are never retried here: a 401 or 403 is handled by a
// single re-authorization in the fetch layer, and everything else surfaces.
package httputil
