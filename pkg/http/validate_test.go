package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readRequest struct {
	Dimension string  `param:"dimension" validate:"required"`
	Cadence   string  `query:"cadence" default:"daily" validate:"oneof=daily weekly"`
	Rate      float64 `query:"risk_free_rate" validate:"gte=0,lte=1"`
}

func bindRequest(t *testing.T, target, dimension string) (*readRequest, interface{}) {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	c.SetParamNames("dimension")
	c.SetParamValues(dimension)
	req := &readRequest{}
	return req, ReadAndValidateRequest(c, req)
}

func TestReadAndValidateAppliesDefaults(t *testing.T) {
	req, verr := bindRequest(t, "/api/history/sector", "sector")
	require.Nil(t, verr)
	assert.Equal(t, "sector", req.Dimension)
	assert.Equal(t, "daily", req.Cadence)
}

func TestReadAndValidateReportsClientFieldNames(t *testing.T) {
	_, verr := bindRequest(t, "/api/history/sector?cadence=hourly&risk_free_rate=2", "sector")
	require.NotNil(t, verr)

	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)
	assert.Equal(t, "cadence", errs[0].Field)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, []string{"daily", "weekly"}, errs[0].Params["options"])
	assert.Equal(t, "risk_free_rate", errs[1].Field)
	assert.Equal(t, "ERR_LTE", errs[1].Code)
}

func TestReadAndValidateBindFailure(t *testing.T) {
	_, verr := bindRequest(t, "/api/history/sector?risk_free_rate=abc", "sector")
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}
