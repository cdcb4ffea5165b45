package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform serves a small entity graph in the Data API envelope shape.
func fakePlatform(t *testing.T, records map[string]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields, ok := records[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"response": fields}))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReconcile_PrintsTotals(t *testing.T) {
	srv := fakePlatform(t, map[string]map[string]any{
		"/order/order-1": {
			"_id":     "order-1",
			"Add Ons": []any{"ao-1"},
			"Event":   "ev-1",
		},
		"/addon/ao-1": {
			"_id":         "ao-1",
			"AddOn Type":  "Ticket",
			"Quantity":    2.0,
			"Ticket Type": "tt-1",
		},
		"/ticket_type/tt-1": {
			"_id":         "tt-1",
			"Price":       50.0,
			"Service Fee": 2.0,
		},
		"/event/ev-1": {
			"_id": "ev-1",
		},
	})

	out, err := execCLI(t, "--config", writeConfig(t, srv.URL), "reconcile", "order-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Order order-1")
	assert.Contains(t, out, "Tickets:              2")
	assert.Contains(t, out, "Gross amount:         $104.00")
}

func TestReconcile_JSONFormat(t *testing.T) {
	srv := fakePlatform(t, map[string]map[string]any{
		"/order/order-1": {"_id": "order-1"},
	})

	out, err := execCLI(t, "--config", writeConfig(t, srv.URL), "--format", "json", "reconcile", "order-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"TicketCount":0`)
}

func TestReconcile_MissingOrder(t *testing.T) {
	srv := fakePlatform(t, map[string]map[string]any{})

	_, err := execCLI(t, "--config", writeConfig(t, srv.URL), "reconcile", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not found")
}
