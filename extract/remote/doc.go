// Package remote implements extract.Model on top of an HTTP inference
// service.
//
// The service accepts a JPEG body on POST and answers with
//
//	{"embedding": [0.1, ...]}
//
// Transient failures (network errors, 429, 5xx) are retried with
// exponential backoff; repeated failures open a circuit breaker so a dead
// service fails fast instead of stalling a build.
package remote
