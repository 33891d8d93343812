// Package supervisor implements the Tier 3 IPC protocol: a synchronous
// request/response exchange over a local Unix domain socket between a
// cascade turn (the client, running inside the hook process) and a
// long-lived process that consults an LLM (the server). Grounded on the
// teacher's HTTPClient-interface-for-testability pattern
// (orchestrator/llm/anthropic/provider.go) adapted from an outbound HTTP
// client to an inbound Unix-socket server/client pair, since the protocol
// here is process-to-process rather than process-to-cloud-API.
package supervisor

import "permgate/internal/decision"

// MaxMessageBytes bounds a single read from the wire to guard against a
// misbehaving peer exhausting memory.
const MaxMessageBytes = 1 << 20 // 1 MiB

// Request is the JSON object the client sends, terminated by a newline,
// before half-closing its write side.
type Request struct {
	SessionID       string `json:"session_id"`
	ToolName        string `json:"tool_name"`
	ToolInput       string `json:"tool_input"`
	Role            string `json:"role"`
	FilePath        string `json:"file_path,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
	PromptPath      string `json:"prompt_path,omitempty"`
	Cwd             string `json:"cwd"`
}

// Response is the JSON object the server sends back, terminated by a
// newline, before closing the connection.
type Response struct {
	Verdict  decision.Verdict  `json:"verdict"`
	Metadata decision.Metadata `json:"metadata"`
}
