// Package rpc implements the Stdio RPC Server: JSON-RPC 2.0 framed one
// object per line over stdin/stdout, exposing the tool registry's
// tools/list and tools/call methods.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
	"github.com/requiem-run/requiem-core/pkg/observability"
	"github.com/requiem-run/requiem-core/pkg/policy"
	"github.com/requiem-run/requiem-core/pkg/tenant"
	"github.com/requiem-run/requiem-core/pkg/toolreg"
)

// Request is an incoming JSON-RPC 2.0 frame.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outgoing JSON-RPC 2.0 frame.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object, carrying the sanitized envelope
// in Data when the underlying failure is one of ours.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ToolDescriptor is one entry of a tools/list response.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Version     string          `json:"version"`
}

type toolsCallParams struct {
	Name      string      `json:"name"`
	Arguments interface{} `json:"arguments"`
}

// Server frames JSON-RPC 2.0 requests over In/Out, dispatching
// tools/list and tools/call against Registry and Gate. One Server
// instance serves one connection; Run blocks until In is exhausted or
// ctx is cancelled.
type Server struct {
	Registry toolreg.Registry
	Gate     *toolreg.Gate
	Ledger   *policy.Ledger
	Clock    clock.Clock

	// Invocation is the base InvocationContext for calls arriving on
	// this connection; each call increments its Depth independently.
	Invocation tenant.InvocationContext

	In     io.Reader
	Out    io.Writer
	Stderr io.Writer

	// Limiter throttles tools/call dispatch on this connection. A nil
	// Limiter disables throttling.
	Limiter *rate.Limiter

	// Observability records RED metrics and spans for each dispatched
	// tool call. A nil Observability disables instrumentation.
	Observability *observability.Provider
}

// NewServer wires a Server with a per-connection limiter of rps
// requests per second and the given burst, mirroring the teacher's
// per-visitor rate.Limiter construction.
func NewServer(registry toolreg.Registry, gate *toolreg.Gate, ledger *policy.Ledger, c clock.Clock, invocation tenant.InvocationContext, in io.Reader, out, stderr io.Writer, rps float64, burst int) *Server {
	return &Server{
		Registry:   registry,
		Gate:       gate,
		Ledger:     ledger,
		Clock:      c,
		Invocation: invocation,
		In:         in,
		Out:        out,
		Stderr:     stderr,
		Limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Run reads one JSON object per line from s.In until EOF or ctx is
// cancelled, dispatching each to handleRequest and writing its Response
// to s.Out. Parse failures are written to s.Stderr; the loop continues.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			fmt.Fprintf(s.Stderr, "rpc: malformed request: %v\n", err)
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := s.writeResponse(resp); err != nil {
			fmt.Fprintf(s.Stderr, "rpc: failed to write response: %v\n", err)
		}
	}
	return scanner.Err()
}

func (s *Server) writeResponse(resp Response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')
	_, err = s.Out.Write(encoded)
	return err
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32601, Message: "method not found: " + req.Method},
		}
	}
}

func (s *Server) handleToolsList(req Request) Response {
	defs := s.Registry.List()
	descriptors := make([]ToolDescriptor, 0, len(defs))
	for _, def := range defs {
		descriptors = append(descriptors, ToolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
			Version:     def.Version,
		})
	}
	return Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  map[string]interface{}{"tools": descriptors},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32000, Message: "rate limited: " + err.Error()}}
		}
	}

	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32602, Message: "invalid tools/call params: " + err.Error()}}
	}

	invocation := s.Invocation.WithIncrementedDepth()

	var callErr error
	if s.Observability != nil {
		var done func(error)
		ctx, done = s.Observability.TrackToolCall(ctx, params.Name, "")
		defer func() { done(callErr) }()
	}

	result, err := s.Gate.Call(ctx, params.Name, "", params.Arguments, invocation)
	callErr = err
	if err != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: toRPCError(err)}
	}

	if s.Ledger != nil {
		_, _ = s.Ledger.WriteLedgerEntry(invocation.TenantID, "mcp_tool_call", "tools/call "+params.Name, map[string]interface{}{
			"source_type": "mcp_tool",
			"requestId":   invocation.RequestID,
			"toolName":    params.Name,
			"hash":        result.Hash,
		})
	}

	return Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"result":        result.Result,
			"hash":          result.Hash,
			"durationMs":    result.DurationMS,
			"fromCache":     result.FromCache,
			"deterministic": result.Deterministic,
		},
	}
}

func toRPCError(err error) *RPCError {
	env, ok := err.(*errs.Envelope)
	if !ok {
		return &RPCError{Code: -32000, Message: err.Error()}
	}

	code := -32000
	switch env.Code {
	case errs.KindUnauthorized:
		code = -32001
	case errs.KindForbidden:
		code = -32003
	case errs.KindValidationFailed:
		code = -32602
	case errs.KindInternalError:
		code = -32603
	}

	return &RPCError{Code: code, Message: env.Message, Data: env}
}
