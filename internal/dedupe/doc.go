// Package dedupe provides an idempotency cache: a time-bounded map from a
// client-supplied key to the result of the first request that used it.
package dedupe
