package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"historydb/pkg/branch"
	"historydb/pkg/cache"
	"historydb/pkg/config"
	"historydb/pkg/memstore"
	"historydb/pkg/store"
	"historydb/pkg/versions"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tc := cache.New(st)
	mem := memstore.New(tc, st)
	vm := versions.NewManager(st, mem, versions.WithLister(st))
	cl := branch.NewCloner(st, mem)

	srv := httptest.NewServer(NewServer(st, tc, mem, vm, cl, config.RateLimitConfig{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })

	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func TestHealthz(t *testing.T) {
	srv := setupServer(t)
	res, out := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok", out["status"])
}

func TestTopicLifecycle(t *testing.T) {
	srv := setupServer(t)

	res, out := doJSON(t, http.MethodPost, srv.URL+"/v1/topics", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	tid := out["id"].(string)
	require.NotEmpty(t, tid)

	res, out = doJSON(t, http.MethodGet, srv.URL+"/v1/topics/"+tid, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "demo", out["name"])

	res, out = doJSON(t, http.MethodGet, srv.URL+"/v1/topics", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, out["topics"], 1)

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/topics/"+tid, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/topics/"+tid, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestAppendAndListMessages(t *testing.T) {
	srv := setupServer(t)

	_, topic := doJSON(t, http.MethodPost, srv.URL+"/v1/topics", map[string]any{"name": "chat"})
	tid := topic["id"].(string)

	res, msg := doJSON(t, http.MethodPost, srv.URL+"/v1/topics/"+tid+"/messages", map[string]any{
		"role": "user", "content": "hello there",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	mid := msg["id"].(string)
	require.NotEmpty(t, mid)
	require.Len(t, msg["block_entities"], 1)

	res, out := doJSON(t, http.MethodGet, srv.URL+"/v1/topics/"+tid+"/messages", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	msgs := out["messages"].([]any)
	require.Len(t, msgs, 1)

	res, got := doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+mid, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, tid, got["topic_id"])
}

func TestAppendMessageRejectsBadRole(t *testing.T) {
	srv := setupServer(t)
	_, topic := doJSON(t, http.MethodPost, srv.URL+"/v1/topics", map[string]any{"name": "chat"})
	tid := topic["id"].(string)

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/topics/"+tid+"/messages", map[string]any{
		"role": "robot", "content": "beep",
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPatchAndDeleteMessage(t *testing.T) {
	srv := setupServer(t)
	_, topic := doJSON(t, http.MethodPost, srv.URL+"/v1/topics", map[string]any{"name": "chat"})
	tid := topic["id"].(string)
	_, msg := doJSON(t, http.MethodPost, srv.URL+"/v1/topics/"+tid+"/messages", map[string]any{
		"role": "user", "content": "hi",
	})
	mid := msg["id"].(string)

	res, patched := doJSON(t, http.MethodPatch, srv.URL+"/v1/messages/"+mid, map[string]any{
		"status": "error",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "error", patched["status"])

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/messages/"+mid, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+mid, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	// The topic index no longer references the deleted message.
	res, out := doJSON(t, http.MethodGet, srv.URL+"/v1/topics/"+tid, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Empty(t, out["message_ids"])
}

func TestForkTopic(t *testing.T) {
	srv := setupServer(t)
	_, topic := doJSON(t, http.MethodPost, srv.URL+"/v1/topics", map[string]any{"name": "chat"})
	tid := topic["id"].(string)

	var mids []string
	for i := 0; i < 3; i++ {
		_, msg := doJSON(t, http.MethodPost, srv.URL+"/v1/topics/"+tid+"/messages", map[string]any{
			"role": "user", "content": fmt.Sprintf("msg %d", i),
		})
		mids = append(mids, msg["id"].(string))
	}

	res, fork := doJSON(t, http.MethodPost, srv.URL+"/v1/topics/"+tid+"/fork", map[string]any{
		"branch_point": mids[1], "name": "forked",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	fid := fork["id"].(string)
	require.NotEqual(t, tid, fid)
	require.Len(t, fork["message_ids"], 2)

	res, out := doJSON(t, http.MethodGet, srv.URL+"/v1/topics/"+fid+"/messages", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, out["messages"], 2)
}

func TestForkTopicRequiresBranchPoint(t *testing.T) {
	srv := setupServer(t)
	_, topic := doJSON(t, http.MethodPost, srv.URL+"/v1/topics", map[string]any{"name": "chat"})
	tid := topic["id"].(string)

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/topics/"+tid+"/fork", map[string]any{"name": "forked"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/topics/"+tid+"/fork", map[string]any{
		"branch_point": "ghost",
	})
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestVersionEndpoints(t *testing.T) {
	srv := setupServer(t)
	_, topic := doJSON(t, http.MethodPost, srv.URL+"/v1/topics", map[string]any{"name": "chat"})
	tid := topic["id"].(string)
	_, msg := doJSON(t, http.MethodPost, srv.URL+"/v1/topics/"+tid+"/messages", map[string]any{
		"role": "assistant", "content": "answer A",
	})
	mid := msg["id"].(string)

	res, v := doJSON(t, http.MethodPost, srv.URL+"/v1/messages/"+mid+"/versions", map[string]any{
		"source": "regenerate",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	vid := v["id"].(string)
	require.Equal(t, "answer A", v["content"])

	res, out := doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+mid+"/versions", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, out["versions"], 1)

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/versions/"+vid+"/switch", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, got := doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+mid, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, vid, got["current_version_id"])

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/messages/"+mid+"/switch-latest", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, got = doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+mid, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Empty(t, got["current_version_id"])

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/versions/"+vid, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, out = doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+mid+"/versions", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Empty(t, out["versions"])
}

func TestSaveVersionEmptyMessage(t *testing.T) {
	srv := setupServer(t)
	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/messages/ghost/versions", map[string]any{})
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestRateLimit(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	tc := cache.New(st)
	mem := memstore.New(tc, st)
	vm := versions.NewManager(st, mem)
	cl := branch.NewCloner(st, mem)

	srv := httptest.NewServer(NewServer(st, tc, mem, vm, cl, config.RateLimitConfig{RPS: 1, Burst: 2}).Handler())
	t.Cleanup(srv.Close)

	var last int
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
		req.Header.Set("X-API-Key", "tenant-a")
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		last = res.StatusCode
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}
