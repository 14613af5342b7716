// Package proxy is the HTTP ingress layer of the gateway. It parses
// client payloads into pipeline work, runs the connector, and writes
// responses and error envelopes in each client protocol's conventions.
//
// The proxy never touches tool-call structure or provider wire formats;
// those belong to the bridge and the protocol adapters. Its one piece of
// payload awareness is a model sniff on the raw body so routing can run
// before normalization.
package proxy
