package server

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrResponse is the JSON body of every failed API call
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	e.RequestID = middleware.GetReqID(r.Context())
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errBadRequest(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusBadRequest, StatusText: "invalid request", ErrorText: err.Error()}
}

func errNotFound(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "not found", ErrorText: err.Error()}
}

func errTimeout(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusGatewayTimeout, StatusText: "timed out", ErrorText: err.Error()}
}

func errInternal(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, StatusText: "internal error", ErrorText: err.Error()}
}
