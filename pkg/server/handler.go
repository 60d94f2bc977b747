package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/deep-research/pkg/research"
)

// mcpSessionTTL bounds how long an initialized MCP session stays valid.
const mcpSessionTTL = 24 * time.Hour

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StreamEvent is one server-sent event of a research stream.
type StreamEvent struct {
	Type     string             `json:"type"`
	Progress *research.Progress `json:"progress,omitempty"`
	Content  string             `json:"content,omitempty"`
	Error    string             `json:"error,omitempty"`
	Report   *research.Report   `json:"report,omitempty"`
}

type Handler struct {
	Service *Service

	sessionMu   sync.RWMutex
	mcpSessions map[string]*MCPSession
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s, mcpSessions: make(map[string]*MCPSession)}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/mcp", h.MCPHandler)

	api := r.Group("/api")
	{
		api.POST("/research", h.streamResearch)
		api.POST("/research/sync", h.runResearch)
		api.GET("/research/:id/logs", h.getRunLogs)
	}
}

func bindTopic(c *gin.Context) (string, bool) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%v: %v", research.ErrMalformedInput, err)})
		return "", false
	}
	topic, err := req.ResolveTopic()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return topic, true
}

// streamResearch runs a session and streams progress, then the result or
// error event, then the [DONE] terminator.
func (h *Handler) streamResearch(c *gin.Context) {
	topic, ok := bindTopic(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	report := h.Service.Run(c.Request.Context(), topic, func(p research.Progress) {
		writeEvent(c, StreamEvent{Type: "progress", Progress: &p})
	})

	if report.Status == research.ReportCompleted {
		writeEvent(c, StreamEvent{Type: "result", Content: report.Content, Report: &report})
	} else {
		writeEvent(c, StreamEvent{Type: "error", Error: report.Error, Content: report.Content, Report: &report})
	}
	_, _ = c.Writer.Write([]byte("data: [DONE]\n\n"))
	c.Writer.Flush()
}

func writeEvent(c *gin.Context, event StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *Handler) runResearch(c *gin.Context) {
	topic, ok := bindTopic(c)
	if !ok {
		return
	}

	report := h.Service.Run(c.Request.Context(), topic, nil)
	c.JSON(http.StatusOK, report)
}

func (h *Handler) getRunLogs(c *gin.Context) {
	runID := c.Param("id")
	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.GetRunLogs(c.Request.Context(), runID)
	if errors.Is(err, ErrLogsUnavailable) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

// MCPHandler handles MCP protocol requests
func (h *Handler) MCPHandler(c *gin.Context) {
	sessionID := c.GetHeader("Mcp-Session-Id")

	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error: &MCPError{
				Code:    -32700,
				Message: "Parse error",
			},
		})
		return
	}

	// Handle initialize request
	if req.Method == "initialize" {
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		now := time.Now()
		h.sessionMu.Lock()
		h.pruneSessions(now)
		if _, ok := h.mcpSessions[sessionID]; !ok {
			h.mcpSessions[sessionID] = &MCPSession{
				ID:      sessionID,
				Created: now.Unix(),
			}
		}
		h.sessionMu.Unlock()
		c.Header("Mcp-Session-Id", sessionID)

		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"serverInfo": map[string]interface{}{
					"name":    "deep-research-mcp",
					"version": "1.0.0",
				},
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
			},
		})
		return
	}

	// Validate session for other requests
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Bad Request: No valid session ID provided",
			},
		})
		return
	}

	h.sessionMu.RLock()
	session, exists := h.mcpSessions[sessionID]
	h.sessionMu.RUnlock()

	if !exists || session.expired(time.Now()) {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Invalid session ID",
			},
		})
		return
	}

	switch req.Method {
	case "tools/list":
		h.handleToolsList(c, req)
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		})
	default:
		h.sendError(c, req.ID, -32601, "Method not found")
	}
}

func (s *MCPSession) expired(now time.Time) bool {
	return now.Sub(time.Unix(s.Created, 0)) > mcpSessionTTL
}

// pruneSessions drops expired sessions. Callers hold sessionMu.
func (h *Handler) pruneSessions(now time.Time) {
	for id, session := range h.mcpSessions {
		if session.expired(now) {
			delete(h.mcpSessions, id)
		}
	}
}

func (h *Handler) handleToolsList(c *gin.Context, req MCPRequest) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": []map[string]interface{}{
				{
					"name":        "run_research",
					"description": "Research a topic on the web over several search and reflection rounds and return a source-backed Markdown report.",
					"inputSchema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"topic": map[string]interface{}{
								"type":        "string",
								"description": "The research topic.",
							},
						},
						"required": []string{"topic"},
					},
				},
			},
		},
	})
}

type runResearchArgs struct {
	Topic string `json:"topic"`
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.sendError(c, req.ID, -32602, "Invalid params")
		return
	}

	switch params.Name {
	case "run_research":
		var args runResearchArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, -32602, "Invalid arguments")
			return
		}
		topic, err := ResearchRequest{Topic: args.Topic}.ResolveTopic()
		if err != nil {
			h.sendError(c, req.ID, -32602, err.Error())
			return
		}
		report := h.Service.Run(c.Request.Context(), topic, nil)
		h.sendResult(c, req.ID, report.Content, report.Status != research.ReportCompleted)

	default:
		h.sendError(c, req.ID, -32601, fmt.Sprintf("Tool not found: %s", params.Name))
	}
}

func (h *Handler) sendError(c *gin.Context, id interface{}, code int, msg string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: msg,
		},
	})
}

func (h *Handler) sendResult(c *gin.Context, id interface{}, text string, isError bool) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": text,
				},
			},
			"isError": isError,
		},
	})
}
