// Package middleware provides the HTTP middleware chain for the ingress
// server: request id propagation, structured access logging, panic
// recovery, per-request timeouts, and CORS.
package middleware
