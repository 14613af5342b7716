// RouteCodex is a multi-provider gateway for LLM API traffic.
//
// It terminates OpenAI Chat, OpenAI Responses, and Anthropic Messages
// requests, routes them through a virtual pipeline of provider,
// compatibility, and llmswitch modules, and speaks each upstream
// provider's wire dialect through protocol adapters and family profiles.
//
// Usage:
//
//	# Start the gateway
//	routecodex run --config /etc/routecodex/config.yaml
//
//	# Validate a configuration file
//	routecodex validate --config config.yaml
//
//	# Show version information
//	routecodex version
package main

func main() {
	Execute()
}
