// Package model defines the provider-agnostic contract between the
// orchestrator and a language model backend.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Describe tools to the model (ToolSpec) and carry its tool call requests
//     back as core.Message values
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (MockModel)
//
// Providers (openai, anthropic) implement Model in sub packages so the
// orchestrator remains decoupled from vendor SDKs.
package model
