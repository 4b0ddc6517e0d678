// Package service is the application layer over the matching domain.
// Engine owns per-instrument serialization, boundary validation and
// decimal conversion, trade journaling, metrics, and the drain loop
// that runs deferred follow-up commands between operations.
package service
