package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"linkporter/internal/task"
)

// envelope is the uniform response shape: a machine-readable code plus a
// human-readable message, with the payload under data.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Code: http.StatusOK, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, envelope{Code: http.StatusCreated, Message: "success", Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, envelope{Code: status, Message: msg})
}

// failErr maps engine errors onto HTTP statuses.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, task.ErrTaskNotFound), errors.Is(err, task.ErrItemNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, task.ErrInvalidState):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, task.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}
