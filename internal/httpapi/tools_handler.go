package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tool_gateway/internal/gateway"
	"tool_gateway/internal/middleware"
	"tool_gateway/internal/models"
	"tool_gateway/internal/stream"
	"tool_gateway/internal/tools"
	"tool_gateway/internal/utils"
)

// callToolRequest is the body of POST /v1/tools/{name}
type callToolRequest struct {
	Arguments     map[string]any `json:"arguments"`
	ReasoningTier string         `json:"reasoning_tier"`
	Stream        bool           `json:"stream"`
}

// callToolResponse is the synchronous response envelope
type callToolResponse struct {
	Success      bool                 `json:"success"`
	Tool         string               `json:"tool"`
	RequestID    string               `json:"request_id"`
	Result       *tools.Result        `json:"result,omitempty"`
	CostTracking *models.CostTracking `json:"cost_tracking,omitempty"`
	Error        *utils.ErrorBody     `json:"error,omitempty"`
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type listToolsResponse struct {
	Tools []toolInfo `json:"tools"`
}

// handleListTools serves GET /v1/tools
func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	ids := d.Gateway.Tools()
	resp := listToolsResponse{Tools: make([]toolInfo, 0, len(ids))}
	for _, id := range ids {
		resp.Tools = append(resp.Tools, toolInfo{Name: id.String(), Description: id.Description()})
	}
	_ = utils.RespondWithJSON(w, http.StatusOK, resp)
}

// handleCallTool serves POST /v1/tools/{name}.
//
// Flow:
//  1. Decode the optional JSON body
//  2. Resolve the caller key set by CallerMiddleware
//  3. Run the call synchronously or as an SSE stream
//  4. Map the outcome onto a status code
func (d *Dependencies) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req callToolRequest
	if d.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, d.MaxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondWithError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large", "")
			return
		}
		utils.RespondWithError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", "")
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	callerKey, _ := middleware.GetCallerKey(r.Context())
	call := gateway.Call{
		ToolName:      name,
		Arguments:     req.Arguments,
		ReasoningTier: req.ReasoningTier,
		CallerKey:     callerKey,
	}

	if wantsStream(r, req) {
		d.streamCall(w, r, call)
		return
	}
	d.syncCall(w, r, call)
}

func (d *Dependencies) syncCall(w http.ResponseWriter, r *http.Request, call gateway.Call) {
	resp, err := d.Gateway.Handle(r.Context(), call)
	w.Header().Set("X-Request-ID", resp.RequestID)

	body := callToolResponse{
		Tool:      call.ToolName,
		RequestID: resp.RequestID,
	}
	ct := resp.CostTracking

	var unknown *tools.UnknownToolError
	switch {
	case errors.As(err, &unknown):
		body.Error = &utils.ErrorBody{Type: gateway.ErrorTypeUnknownTool, Message: unknown.Error()}
		body.CostTracking = &ct
		_ = utils.RespondWithJSON(w, http.StatusNotFound, body)
	case err != nil:
		d.logger.Error("Tool call failed internally", "request_id", resp.RequestID, "tool", call.ToolName, "error", err)
		body.Error = &utils.ErrorBody{Type: gateway.ErrorTypeInternal, Message: "internal error"}
		_ = utils.RespondWithJSON(w, http.StatusInternalServerError, body)
	case resp.Result.IsError:
		result := resp.Result
		body.Result = &result
		body.CostTracking = &ct
		body.Error = &utils.ErrorBody{Type: gateway.ErrorTypeToolError, Message: result.Text()}
		_ = utils.RespondWithJSON(w, http.StatusBadGateway, body)
	default:
		result := resp.Result
		body.Success = true
		body.Result = &result
		body.CostTracking = &ct
		_ = utils.RespondWithJSON(w, http.StatusOK, body)
	}
}

func (d *Dependencies) streamCall(w http.ResponseWriter, r *http.Request, call gateway.Call) {
	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, gateway.ErrorTypeInternal, "streaming not supported", "")
		return
	}

	requestID, err := d.Gateway.Stream(r.Context(), call, sse)
	if err != nil {
		// The stream already carried the error event; the status line is gone.
		d.logger.Info("Streamed call ended with error", "request_id", requestID, "tool", call.ToolName, "error", err)
	}
}

// wantsStream reports whether the caller asked for Server-Sent Events
func wantsStream(r *http.Request, req callToolRequest) bool {
	if req.Stream {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	if v := r.URL.Query().Get("stream"); v != "" {
		on, err := strconv.ParseBool(v)
		return err == nil && on
	}
	return false
}
