package subgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsPaginatesFromResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 50, req.Variables["first"])
		assert.Equal(t, "0xlast", req.Variables["lastID"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"users":[{"id":"0xaaa"},{"id":"0xbbb"}]}}`))
	}))
	defer server.Close()

	client := New(server.URL)
	ids, err := client.Accounts(context.Background(), 50, "0xlast")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, ids)
}

func TestAccountsSurfacesGraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.Accounts(context.Background(), 50, "0x0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
