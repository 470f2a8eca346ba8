package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"backend/pkg/apperr"
	"backend/pkg/response"
)

// respondError maps a typed service error to its HTTP status and the
// error envelope.
func respondError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), response.FromError(err))
}

// bindJSON binds and validates the request body, answering 400 with
// the validation message on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest,
			response.Error(apperr.CodeValidation, "invalid request payload: "+err.Error()))
		return false
	}
	return true
}

// pathUUID parses a uuid path parameter, answering 400 on bad input.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest,
			response.Error(apperr.CodeValidation, "invalid "+name+" parameter"))
		return uuid.Nil, false
	}
	return id, true
}
