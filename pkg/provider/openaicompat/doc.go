// Package openaicompat implements provider.Provider against any
// OpenAI-compatible Chat Completions backend. One adapter serves both
// local backends (Ollama, vLLM, llama.cpp server) and cloud APIs; the
// registry descriptor decides priority and cost, not the protocol.
package openaicompat
