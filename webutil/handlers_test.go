package webutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinedokbox/dokbox/models"
)

func TestMakeHandlerMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"http error", ErrBadRequest("Email is required"), http.StatusBadRequest, `{"error":"Email is required"}`},
		{"wrapped http error keeps public message", ErrConflictWrap("", errors.New("pq: duplicate key")), http.StatusConflict, `{"error":"Conflict"}`},
		{"no rows", fmt.Errorf("loading: %w", sql.ErrNoRows), http.StatusNotFound, `{"error":"Resource not found"}`},
		{"domain not found", models.ErrNotFound, http.StatusNotFound, `{"error":"Resource not found"}`},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, `{"error":"Internal Server Error"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := MakeHandler(func(w http.ResponseWriter, r *http.Request) error { return tc.err })
			rr := httptest.NewRecorder()
			h(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, tc.code, rr.Code)
			assert.JSONEq(t, tc.body, rr.Body.String())
			assert.Equal(t, ContentTypeJSONUTF8, rr.Header().Get(HeaderContentType))
		})
	}
}

func TestMakeHandlerDoesNotOverwriteWrittenResponse(t *testing.T) {
	h := MakeHandler(func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set(HeaderContentType, ContentTypeTextPlainUTF8)
		w.WriteHeader(http.StatusAccepted)
		return errors.New("late failure")
	})
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestMakeHandlerIgnoresPresetContentType(t *testing.T) {
	h := MakeHandler(func(w http.ResponseWriter, r *http.Request) error {
		return ErrUnauthorized("")
	})
	rr := httptest.NewRecorder()
	rr.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	h(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rr.Body.String())
}

func TestHTTPErrorUnwrap(t *testing.T) {
	cause := models.ErrDuplicateCheckFailed
	err := ErrServiceUnavailableWrap("try again", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "try again", err.Error())
}

func TestGenerateRandomToken(t *testing.T) {
	a, err := GenerateRandomToken(16)
	require.NoError(t, err)
	b, err := GenerateRandomToken(16)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[a-z2-7]{26}$`), a)
	assert.NotEqual(t, a, b)

	_, err = GenerateRandomToken(0)
	assert.Error(t, err)
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashBytes(nil))
	assert.Len(t, HashBytes([]byte("x")), 64)
}

func TestUserIDContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, UserIDFromContext(req.Context()))
	assert.Equal(t, "u1", UserIDFromContext(WithUserID(req.Context(), "u1")))
}
