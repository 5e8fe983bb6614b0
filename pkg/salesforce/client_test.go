package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSFClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return NewClient(sf)
}

func TestSFClient_Query(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{{
				"attributes": map[string]any{"type": "Account"},
				"Id":         "001xx",
				"Name":       "Acme Corp",
				"Website":    "https://acme.com",
			}},
		})
	}))

	var accounts []Account
	require.NoError(t, client.Query(context.Background(), "SELECT Id, Name FROM Account", &accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "001xx", accounts[0].ID)
	assert.Equal(t, "Acme Corp", accounts[0].Name)
}

func TestSFClient_Query_Error(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"}})
	}))

	var accounts []Account
	err := client.Query(context.Background(), "INVALID", &accounts)
	assert.ErrorContains(t, err, "sf: query")
}

func TestSFClient_InsertOne(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "00Tnew", "success": true, "errors": []any{}})
	}))

	id, err := client.InsertOne(context.Background(), "Task", map[string]any{"Subject": "Call Acme"})
	require.NoError(t, err)
	assert.Equal(t, "00Tnew", id)
}

func TestSFClient_InsertOne_Failure(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "",
			"success": false,
			"errors":  []map[string]any{{"message": "required field missing"}},
		})
	}))

	_, err := client.InsertOne(context.Background(), "Account", map[string]any{})
	assert.ErrorContains(t, err, "insert Account failed")
}

func TestSFClient_UpdateOne(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	fields := map[string]any{"Description": "Ready for handoff"}
	require.NoError(t, client.UpdateOne(context.Background(), "Account", "001xx", fields))
	_, mutated := fields["Id"]
	assert.False(t, mutated, "caller map is not modified")
}

func TestSFClient_RateLimitCancelled(t *testing.T) {
	c := NewClient(nil, WithRateLimit(0.001)).(*sfClient)
	require.NotNil(t, c.limiter)
	_ = c.wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.InsertOne(ctx, "Task", nil)
	assert.ErrorContains(t, err, "sf: rate limit")
}
