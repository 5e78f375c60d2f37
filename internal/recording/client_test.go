package recording

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.SourceConfig{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		PageSize:  2,
		PageDelay: time.Millisecond,
		Retries:   2,
	})
}

func writeRecordings(w http.ResponseWriter, recs []Recording) {
	_ = json.NewEncoder(w).Encode(map[string]any{"recordings": recs})
}

func TestClient_ListSince_Paginates(t *testing.T) {
	all := []Recording{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := offset + 2
		if end > len(all) {
			end = len(all)
		}
		writeRecordings(w, all[offset:end])
	}))

	recs, err := client.ListSince(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "r1", recs[0].ID)
	assert.Equal(t, "r3", recs[2].ID)
}

func TestClient_ListSince_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeRecordings(w, []Recording{{ID: "r1"}})
	}))

	recs, err := client.ListSince(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestClient_ListSince_ExhaustedRetriesFail(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.ListSince(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching recordings page")
}

func TestClient_MarkAndClearProcessed(t *testing.T) {
	var gotMethod, gotPath string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.MarkProcessed(context.Background(), "rec-9"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/recordings/rec-9/processed", gotPath)

	require.NoError(t, client.ClearProcessed(context.Background(), "rec-9"))
	assert.Equal(t, http.MethodDelete, gotMethod)
}
