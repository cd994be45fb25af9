package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErrorCodes(t *testing.T) {
	assert.Equal(t, "ERR_CONFLICT", ConflictError("busy").Code)
	assert.Equal(t, http.StatusConflict, ConflictError("busy").Status)
	assert.Equal(t, "ERR_HTTP_418", StatusAppError(http.StatusTeapot, "tea").Code)
}

func TestAppErrorWrapsCause(t *testing.T) {
	cause := errors.New("redis down")
	err := fmt.Errorf("handler: %w", ServiceUnavailableError("cache unavailable").WithError(cause))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "handler: cache unavailable: redis down", err.Error())
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, NotFoundError("unknown dimension").WithParam("dimension", "planet")))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Status int         `json:"status"`
		Data   []*AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_NOT_FOUND", body.Data[0].Code)
	assert.Equal(t, "planet", body.Data[0].Params["dimension"])

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, errors.New("select failed: password=hunter2")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}
