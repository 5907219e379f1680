package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/pkg/blob"
	"github.com/filemount/filemount/pkg/mount"
	"github.com/filemount/filemount/pkg/uploader"
)

// Problem represents an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type,omitempty"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// writeProblem writes an RFC 7807 problem response.
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	problem := &Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	}

	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

func badRequest(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

func unauthorized(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusUnauthorized, "Unauthorized", detail)
}

func notFound(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusNotFound, "Not Found", detail)
}

func unprocessableEntity(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", detail)
}

func internalServerError(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// writeMountError maps file lifecycle errors to problem responses: content
// rejections are the client's fault, unreachable remote sources are a bad
// gateway, everything else is a server error.
func writeMountError(w http.ResponseWriter, err error) {
	switch {
	case uploader.IsIntegrity(err):
		unprocessableEntity(w, err.Error())
	case uploader.IsProcessing(err):
		unprocessableEntity(w, err.Error())
	case uploader.IsDownload(err):
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", err.Error())
	case errors.Is(err, mount.ErrFrozen):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, blob.ErrNotFound):
		notFound(w, err.Error())
	default:
		internalServerError(w, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
//
// Encoding is done to a buffer first so an encoding failure can still
// produce an error response before headers are sent.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"title":"Internal Server Error","status":500}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
