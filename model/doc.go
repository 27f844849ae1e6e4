// Package model defines the LLM provider contract consumed by the agent
// runtime, the normalized request shape, and the tool-call fragment
// accumulator shared by the provider adapters. Concrete adapters live in the
// subpackages anthropic and openai; both produce the same canonical
// core.StreamEvent sequence regardless of vendor protocol.
package model
