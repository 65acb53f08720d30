package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupHub/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		service.ErrNotFound:         http.StatusNotFound,
		service.ErrInviteInvalid:    http.StatusNotFound,
		service.ErrPermissionDenied: http.StatusForbidden,
		service.ErrAlreadyMember:    http.StatusConflict,
		service.ErrCapacityExceeded: http.StatusConflict,
		service.ErrLastAdmin:        http.StatusConflict,
		service.ErrInviteExpired:    http.StatusGone,
		service.ErrValidation:       http.StatusBadRequest,
		service.ErrRepository:       http.StatusInternalServerError,
		errors.New("boom"):          http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(service.Code(err)), err.Error())
	}
}

func errorBody(t *testing.T, err error) (int, map[string]string) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestRespondError(t *testing.T) {
	code, body := errorBody(t, fmt.Errorf("%w: name is empty", service.ErrValidation))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", body["reason"])
	assert.Contains(t, body["error"], "name is empty")

	code, body = errorBody(t, fmt.Errorf("%w: connection reset by peer", service.ErrRepository))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "repository_error", body["reason"])
	assert.Equal(t, "internal server error", body["error"])
}

func TestActorRequired(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)

	NewGroupHandler(nil).ListGroups(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, c.IsAborted())
}
