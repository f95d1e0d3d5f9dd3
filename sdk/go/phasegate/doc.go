// Package phasegate provides in-process workflow enforcement for Go
// agent frameworks. A Client loads the workflow definition once; each
// claimed task becomes a Session that carries its phase token, checks
// tool permissions, and requests gate transitions.
//
// Usage:
//
//	pg, err := phasegate.New(phasegate.WithWorkflow("workflow.yaml"))
//	session, err := pg.Claim("", "my-agent")
//	wrapped := session.Wrap(myTool)
//	result, err := wrapped(ctx, phasegate.ToolCall{Tool: "write_file"})
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/ppiankov/phasegate/sdk/go/phasegate.
package phasegate
