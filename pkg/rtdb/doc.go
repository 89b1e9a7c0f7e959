// Package rtdb provides a client for the REST surface of a hierarchical
// realtime key/value database (paths ending in ".json"). The Database type
// turns logical operations into HTTP calls, dispatches them together and
// retries the failed subset with exponential backoff while keeping every
// result aligned with its input.
//
// GetAll is the batch entry point: it never fails per request, each Result
// carries either a value or an error. Get/Set/Push/Update/Remove wrap a single
// request and return its error directly. Only unattributable transport
// failures across a batch abort the whole call (ErrGlobalCrash).
//
// Retried POST requests may create duplicate children; PUT, PATCH and DELETE
// are idempotent on the service side.
package rtdb
