// Package kernel implements the brand-agnostic bottom of the provider
// transport layer: credential assembly, HTTP execution with retry and
// per-host connection pooling, upstream error normalization, and snapshot
// emission for audit.
//
// The kernel never examines payloads for brand-specific fields, never
// rewrites headers for specific providers, and never signs requests. All
// such logic belongs to the family profiles layered above it.
package kernel
