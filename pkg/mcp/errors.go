package mcp

import "fmt"

// ToolInvocationError reports a call the tool server received and rejected:
// a non-2xx status, a success=false envelope, or a 2xx body that was not
// valid JSON. The server's error envelope, when present, is preserved in
// Type/Message/Body.
type ToolInvocationError struct {
	Tool       string
	StatusCode int
	Type       string
	Message    string
	Body       map[string]any
}

func (e *ToolInvocationError) Error() string {
	switch {
	case e.Tool == "":
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	case e.Type != "":
		return fmt.Sprintf("tool %s: %s: %s (HTTP %d)", e.Tool, e.Type, e.Message, e.StatusCode)
	default:
		return fmt.Sprintf("tool %s: %s (HTTP %d)", e.Tool, e.Message, e.StatusCode)
	}
}

// newInvocationError lifts the {error: {type, message}} envelope into a
// ToolInvocationError, falling back to the HTTP status when the server sent
// no structured error.
func newInvocationError(tool string, status int, body map[string]any) *ToolInvocationError {
	e := &ToolInvocationError{
		Tool:       tool,
		StatusCode: status,
		Body:       body,
	}
	if errObj, ok := body["error"].(map[string]any); ok {
		e.Type, _ = errObj["type"].(string)
		e.Message, _ = errObj["message"].(string)
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("tool server rejected the call with status %d", status)
	}
	return e
}

// MCPError reports a transport-level fault (connection refused, timeout,
// request encoding, response read) where no server verdict was obtained.
type MCPError struct {
	Tool string
	Op   string
	Err  error
}

func (e *MCPError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("mcp: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mcp: %s %s: %v", e.Op, e.Tool, e.Err)
}

func (e *MCPError) Unwrap() error { return e.Err }
