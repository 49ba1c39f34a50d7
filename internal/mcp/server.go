package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const protocolVersion = "2024-11-05"

// Server implements an MCP stdio server exposing the memory read tools. It
// is a thin wrapper: every tool delegates to the worker's HTTP surface.
type Server struct {
	workerURL string
	client    *http.Client
}

// NewServer creates a new MCP server pointed at the worker.
func NewServer(workerURL string) *Server {
	return &Server{
		workerURL: strings.TrimRight(workerURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Run starts the stdio event loop. Blocks until stdin is closed.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(os.Stdin)
	// Increase buffer for large messages
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(nil, -32700, "parse error: "+err.Error())
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			s.writeResponse(resp)
		}
	}

	return scanner.Err()
}

func (s *Server) handleRequest(req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized":
		// Notification — no response
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]string{}}
	default:
		return s.errorResponse(req.ID, -32601, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: ServerCapabilities{
				Tools: &ToolCapabilities{},
			},
			ServerInfo: ServerInfo{
				Name:    "claude-mem",
				Version: "1.0.0",
			},
		},
	}
}

func (s *Server) handleToolsList(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  ToolsListResult{Tools: ToolDefinitions()},
	}
}

func (s *Server) handleToolsCall(req *Request) *Response {
	paramsBytes, err := json.Marshal(req.Params)
	if err != nil {
		return s.errorResponse(req.ID, -32602, "invalid params")
	}

	var params CallToolParams
	if err := json.Unmarshal(paramsBytes, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "invalid params: "+err.Error())
	}

	result, isError := s.dispatchTool(params.Name, params.Arguments)

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func (s *Server) dispatchTool(name string, args map[string]interface{}) (string, bool) {
	switch name {
	case "search":
		return s.toolSearch(args)
	case "timeline":
		return s.toolTimeline(args)
	case "get_observations":
		return s.toolGetObservations(args)
	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}
}

// --- Tool implementations (HTTP delegation) ---

func (s *Server) toolSearch(args map[string]interface{}) (string, bool) {
	q := url.Values{}
	if v, ok := args["query"].(string); ok {
		q.Set("q", v)
	}
	if v, ok := args["project"].(string); ok && v != "" {
		q.Set("project", v)
	}
	if v, ok := args["type"].(string); ok && v != "" {
		q.Set("type", v)
	}
	q.Set("limit", fmt.Sprintf("%d", int(getFloat(args, "limit", 10))))
	return s.httpGet("/search?" + q.Encode())
}

func (s *Server) toolTimeline(args map[string]interface{}) (string, bool) {
	q := url.Values{}
	q.Set("anchor", fmt.Sprintf("%d", int64(getFloat(args, "anchor", 0))))
	q.Set("radius", fmt.Sprintf("%d", int(getFloat(args, "radius", 5))))
	return s.httpGet("/timeline?" + q.Encode())
}

func (s *Server) toolGetObservations(args map[string]interface{}) (string, bool) {
	raw, ok := args["ids"].([]interface{})
	if !ok || len(raw) == 0 {
		return "ids is required", true
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		switch id := v.(type) {
		case float64:
			ids = append(ids, fmt.Sprintf("%d", int64(id)))
		case string:
			ids = append(ids, id)
		}
	}
	return s.httpGet("/observations/" + strings.Join(ids, ","))
}

// --- HTTP helpers ---

func (s *Server) httpGet(path string) (string, bool) {
	resp, err := s.client.Get(s.workerURL + path)
	if err != nil {
		return fmt.Sprintf("HTTP error: %s", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("read error: %s", err), true
	}

	if resp.StatusCode >= 400 {
		return string(respBody), true
	}
	return string(respBody), false
}

// --- Response helpers ---

func (s *Server) writeResponse(resp *Response) {
	data, _ := json.Marshal(resp)
	fmt.Fprintf(os.Stdout, "%s\n", data)
}

func (s *Server) writeError(id interface{}, code int, message string) {
	s.writeResponse(s.errorResponse(id, code, message))
}

func (s *Server) errorResponse(id interface{}, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

func getFloat(args map[string]interface{}, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}
