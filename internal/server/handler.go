package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ppiankov/rectify/internal/knowledge"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/pipeline"
)

// Corrector runs one correction request
type Corrector interface {
	Correct(ctx context.Context, req pipeline.Request) (*model.CorrectionResult, error)
	Provider() string
}

// CorrectionRequest is the JSON body of POST /api/v1/corrections
type CorrectionRequest struct {
	Text      string `json:"text"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status           string    `json:"status"`
	Provider         string    `json:"provider"`
	Sources          int       `json:"sources"`
	KnowledgeVersion uint64    `json:"knowledge_version"`
	KnowledgeBuiltAt time.Time `json:"knowledge_built_at"`
}

// Handler serves the correction API
type Handler struct {
	corrector Corrector
	index     *knowledge.Index
}

// NewHandler creates a handler. A nil index serves an empty knowledge store.
func NewHandler(corrector Corrector, index *knowledge.Index) *Handler {
	if index == nil {
		index, _ = knowledge.NewIndex()
	}
	return &Handler{corrector: corrector, index: index}
}

// RegisterRoutes registers the API routes under api
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/corrections", h.CreateCorrection)
	api.GET("/sources", h.ListSources)
	api.GET("/sources/:id", h.GetSource)
}

// CreateCorrection accepts a JSON CorrectionRequest or a text/plain report.
// Plain-text requests take timeout_ms and top_k from the query string.
func (h *Handler) CreateCorrection(c echo.Context) error {
	req, err := bindCorrection(c)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_input", Message: err.Error()})
	}

	result, err := h.corrector.Correct(c.Request().Context(), req)
	if err != nil {
		var invalid *model.InvalidInputError
		if errors.As(err, &invalid) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_input", Message: invalid.Reason})
		}
		return fmt.Errorf("correct: %w", err)
	}

	return c.JSON(http.StatusOK, result)
}

// ListSources returns every indexed source without its full text
func (h *Handler) ListSources(c echo.Context) error {
	snap := h.index.Snapshot()
	out := make([]model.KnowledgeSource, 0, snap.Len())
	for i := 0; i < snap.Len(); i++ {
		src := snap.Source(i)
		src.FullText = ""
		out = append(out, src)
	}
	return c.JSON(http.StatusOK, out)
}

// GetSource returns one knowledge source by id
func (h *Handler) GetSource(c echo.Context) error {
	id := c.Param("id")
	src, ok := h.index.Snapshot().Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: fmt.Sprintf("knowledge source %q not found", id),
		})
	}
	return c.JSON(http.StatusOK, src)
}

// Health reports liveness and the knowledge snapshot in use
func (h *Handler) Health(c echo.Context) error {
	snap := h.index.Snapshot()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		Provider:         h.corrector.Provider(),
		Sources:          snap.Len(),
		KnowledgeVersion: snap.Version(),
		KnowledgeBuiltAt: snap.BuiltAt(),
	})
}

// bindCorrection reads the request body. Errors other than *echo.HTTPError
// describe a malformed request.
func bindCorrection(c echo.Context) (pipeline.Request, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return pipeline.Request{}, httpErr
		}
		return pipeline.Request{}, fmt.Errorf("read body: %w", err)
	}

	var in CorrectionRequest
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMETextPlain) {
		in.Text = string(body)
		if in.TimeoutMS, err = queryInt(c, "timeout_ms"); err != nil {
			return pipeline.Request{}, err
		}
		if in.TopK, err = queryInt(c, "top_k"); err != nil {
			return pipeline.Request{}, err
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(body))
		if err := dec.Decode(&in); err != nil {
			return pipeline.Request{}, fmt.Errorf("malformed JSON body: %w", err)
		}
	}

	if in.TimeoutMS < 0 {
		return pipeline.Request{}, fmt.Errorf("timeout_ms must not be negative")
	}
	if in.TopK < 0 {
		return pipeline.Request{}, fmt.Errorf("top_k must not be negative")
	}

	return pipeline.Request{
		Text:    in.Text,
		TopK:    in.TopK,
		Timeout: time.Duration(in.TimeoutMS) * time.Millisecond,
	}, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
