/*
handlers_test.go - Tests for the REST surface

Runs the chi router against the in-memory store, covering the account
lifecycle, record append/delete with balance reversal, and cursor-based
batch fetching.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pocket-ledger/api"
	"github.com/warp/pocket-ledger/ledger"
	"github.com/warp/pocket-ledger/ledger/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := api.NewHandler(store.NewMemory(), 3)
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPI_AccountLifecycle(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/users/user-1"

	// No account yet: classified as deleted (identity present via URL).
	resp := do(t, http.MethodGet, base+"/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ledger.StateDeleted, decode[api.StateDTO](t, resp).State)

	// Create: new
	resp = do(t, http.MethodPost, base+"/account", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/state", nil)
	assert.Equal(t, ledger.StateNew, decode[api.StateDTO](t, resp).State)

	// Creating again conflicts
	resp = do(t, http.MethodPost, base+"/account", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Currency: used
	resp = do(t, http.MethodPut, base+"/currency", api.SetCurrencyRequest{CurrencyCode: 840})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/state", nil)
	assert.Equal(t, ledger.StateUsed, decode[api.StateDTO](t, resp).State)

	// Delete: back to deleted
	resp = do(t, http.MethodDelete, base+"/account", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/state", nil)
	assert.Equal(t, ledger.StateDeleted, decode[api.StateDTO](t, resp).State)
}

func TestAPI_RecordsAndBalance(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/users/user-1"
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, base+"/account", nil).StatusCode)

	// Income 100
	resp := do(t, http.MethodPost, base+"/records", api.CreateRecordRequest{Amount: "100"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Expense 30
	resp = do(t, http.MethodPost, base+"/records", api.CreateRecordRequest{IsExpense: true, Amount: "30"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	expense := decode[api.RecordDTO](t, resp)

	resp = do(t, http.MethodGet, base+"/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "70", decode[api.BalanceDTO](t, resp).Balance)

	// Deleting the expense reverses its contribution
	resp = do(t, http.MethodDelete, base+"/records/"+expense.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/balance", nil)
	assert.Equal(t, "100", decode[api.BalanceDTO](t, resp).Balance)

	// Deleting it again is a 404
	resp = do(t, http.MethodDelete, base+"/records/"+expense.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_RecordValidation(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/users/user-1"
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, base+"/account", nil).StatusCode)

	resp := do(t, http.MethodPost, base+"/records", api.CreateRecordRequest{Amount: "not-a-number"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/records", api.CreateRecordRequest{Amount: "-5"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// No account: appending is a 404, not a silent half-write
	other := srv.URL + "/api/users/user-2"
	resp = do(t, http.MethodPost, other+"/records", api.CreateRecordRequest{Amount: "5"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_BatchPaging(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/users/user-1"
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, base+"/account", nil).StatusCode)

	for i := 0; i < 7; i++ {
		resp := do(t, http.MethodPost, base+"/records",
			api.CreateRecordRequest{Amount: fmt.Sprintf("%d", i+1)})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	// First page: default limit (3), ascending timestamps
	resp := do(t, http.MethodGet, base+"/records", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[api.BatchDTO](t, resp)
	require.Len(t, page.Records, 3)
	require.NotNil(t, page.NextCursor)
	for i := 1; i < len(page.Records); i++ {
		assert.Greater(t, page.Records[i].Timestamp, page.Records[i-1].Timestamp)
	}

	// Walk the rest via cursors, collecting ids
	seen := map[string]bool{}
	for _, r := range page.Records {
		seen[r.ID] = true
	}
	cursor := *page.NextCursor
	for {
		resp := do(t, http.MethodGet, fmt.Sprintf("%s/records?cursor=%d", base, cursor), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		page := decode[api.BatchDTO](t, resp)
		if len(page.Records) == 0 {
			break
		}
		for _, r := range page.Records {
			assert.False(t, seen[r.ID], "no record delivered twice across pages")
			seen[r.ID] = true
		}
		cursor = *page.NextCursor
	}
	assert.Len(t, seen, 7)

	// Bad cursor and bad limit are client errors
	resp = do(t, http.MethodGet, base+"/records?cursor=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, http.MethodGet, base+"/records?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
