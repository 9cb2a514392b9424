package httpapi

import (
	"net/http"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	ErrorText      string `json:"error"`
	Detail         string `json:"detail,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		ErrorText:      "Invalid Request",
		Detail:         err.Error(),
	}
}

func errNotFound(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusNotFound,
		ErrorText:      "Not Found",
	}
}

func errUnexpected(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		ErrorText:      "Internal Server Error",
	}
}

// errFor maps service errors onto responses.
func errFor(err error) render.Renderer {
	var ve *models.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return errNotFound(err)
	case errors.As(err, &ve):
		return errInvalidRequest(err)
	default:
		return errUnexpected(err)
	}
}
