package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/providers"
	"github.com/fyrsmithlabs/tutord/internal/search"
	"github.com/fyrsmithlabs/tutord/internal/tutor"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

func isValidation(err error) bool {
	return errors.Is(err, ingest.ErrValidation) ||
		errors.Is(err, vectorstore.ErrInvalidConfig) ||
		errors.Is(err, vectorstore.ErrEmptyChunks) ||
		errors.Is(err, vectorstore.ErrDimensionMismatch)
}

func isNotFound(err error) bool {
	return errors.Is(err, vectorstore.ErrNotFound)
}

func isMalformedOutput(err error) bool {
	return errors.Is(err, providers.ErrMalformedOutput)
}

func isExhausted(err error) bool {
	return errors.Is(err, providers.ErrAllProvidersExhausted)
}

// handleIngest stores one document.
func (s *Server) handleIngest(c echo.Context) error {
	var req ingest.IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.pipeline.Ingest(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

type bulkIngestRequest struct {
	Documents []ingest.IngestRequest `json:"documents"`
}

// handleBulkIngest stores a batch of documents, reporting per-item outcomes.
func (s *Server) handleBulkIngest(c echo.Context) error {
	var req bulkIngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents cannot be empty")
	}

	result := s.pipeline.BulkIngest(c.Request().Context(), req.Documents)
	return c.JSON(http.StatusOK, result)
}

type listDocumentsResponse struct {
	Documents []vectorstore.DocumentInfo `json:"documents"`
	Count     int                        `json:"count"`
}

// handleListDocuments lists stored documents, optionally filtered.
func (s *Server) handleListDocuments(c echo.Context) error {
	docs, err := s.store.ListDocuments(c.Request().Context(), vectorstore.DocumentFilters{
		Subject:    c.QueryParam("subject"),
		GradeLevel: c.QueryParam("grade_level"),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, listDocumentsResponse{Documents: docs, Count: len(docs)})
}

// handleGetDocument returns one document with its content.
func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.store.GetDocument(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

// handleUpdateDocument applies partial changes to a document.
func (s *Server) handleUpdateDocument(c echo.Context) error {
	var req ingest.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.pipeline.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleDeleteDocument removes a document and its chunks.
func (s *Server) handleDeleteDocument(c echo.Context) error {
	if err := s.pipeline.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type searchResponse struct {
	Results []vectorstore.SearchResult `json:"results"`
	Count   int                        `json:"count"`
}

// handleSearch runs a similarity search over stored chunks.
func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	results := s.searcher.Search(c.Request().Context(), query, searchOptions(c))
	return c.JSON(http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

// handleSearchByTopic searches using a topic expanded into a query.
func (s *Server) handleSearchByTopic(c echo.Context) error {
	topic := c.QueryParam("topic")
	if topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter topic is required")
	}

	results := s.searcher.SearchByTopic(c.Request().Context(), topic, searchOptions(c))
	return c.JSON(http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func searchOptions(c echo.Context) search.Options {
	opts := search.Options{
		Subject:    c.QueryParam("subject"),
		GradeLevel: c.QueryParam("grade_level"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			opts.Limit = limit
		}
	}
	return opts
}

// handleChat is a raw passthrough to the provider chain, without retrieval.
func (s *Server) handleChat(c echo.Context) error {
	var req providers.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages cannot be empty")
	}

	result, err := s.chatter.Chat(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleTutor answers a student message grounded in retrieved context.
func (s *Server) handleTutor(c echo.Context) error {
	var req tutor.TutorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message cannot be empty")
	}

	resp, err := s.tutor.Respond(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleQuiz generates a structured quiz on a topic.
func (s *Server) handleQuiz(c echo.Context) error {
	var req tutor.QuizRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic cannot be empty")
	}

	result, err := s.tutor.GenerateQuiz(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleGrade evaluates one student answer.
func (s *Server) handleGrade(c echo.Context) error {
	var req tutor.GradeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" || req.StudentAnswer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question and student_answer are required")
	}

	result, err := s.tutor.Grade(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleStats reports store totals.
func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}
