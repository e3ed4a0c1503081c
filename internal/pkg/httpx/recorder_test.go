package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorder_DefaultStatusAndBytes(t *testing.T) {
	rec := NewRecorder(httptest.NewRecorder())
	require.Equal(t, http.StatusOK, rec.Status())

	_, _ = rec.Write([]byte("abcd"))
	_, _ = rec.Write([]byte("ef"))

	require.Equal(t, http.StatusOK, rec.Status())
	require.Equal(t, 6, rec.Bytes())
}

func TestRecorder_KeepsFirstStatus(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := NewRecorder(inner)

	rec.WriteHeader(http.StatusUnauthorized)
	rec.WriteHeader(http.StatusInternalServerError)

	require.Equal(t, http.StatusUnauthorized, rec.Status())
	require.Equal(t, http.StatusUnauthorized, inner.Code)
	require.Same(t, inner, rec.Unwrap())
}
