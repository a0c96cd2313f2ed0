package sourceapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/rostersync/internal/adapters/http/sourceapi"
	"github.com/okian/rostersync/internal/adapters/remote/remotetest"
	"github.com/okian/rostersync/internal/domain/types"
)

func newServer(t *testing.T) (*remotetest.Source, *httptest.Server) {
	t.Helper()
	src := remotetest.New()
	ts := httptest.NewServer(sourceapi.New(src).Handler())
	t.Cleanup(func() {
		src.Close()
		ts.Close()
	})
	return src, ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) sourceapi.ErrorBody {
	t.Helper()
	var body sourceapi.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestSelectOrdersRows(t *testing.T) {
	src, ts := newServer(t)
	src.Seed(types.Members,
		types.Row{"id": "a", "dkp": 10.0},
		types.Row{"id": "b", "dkp": 30.0},
		types.Row{"id": "c", "dkp": 20.0},
	)

	resp := doJSON(t, http.MethodGet, ts.URL+"/rest/members?order=dkp&asc=false", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []types.Row
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID())
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestSelectEmptyCollectionIsArray(t *testing.T) {
	_, ts := newServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/rest/raid_history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}

func TestWrites(t *testing.T) {
	src, ts := newServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/rest/members", types.Row{"id": "m1", "name": "Thrall"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPatch, ts.URL+"/rest/members/m1", types.Row{"dkp": 42.0})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	rows := src.Rows(types.Members)
	require.Len(t, rows, 1)
	assert.Equal(t, 42.0, rows[0]["dkp"])
	assert.Equal(t, "Thrall", rows[0]["name"])

	resp = doJSON(t, http.MethodDelete, ts.URL+"/rest/members/m1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, src.Rows(types.Members))
}

func TestErrorEnvelope(t *testing.T) {
	src, ts := newServer(t)
	src.Seed(types.Members, types.Row{"id": "m1"})
	src.FailOn(remotetest.OpDelete, types.Awards, remotetest.ErrInjected)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown collection", http.MethodGet, "/rest/guilds", nil, http.StatusNotFound, sourceapi.CodeUnknownCollection},
		{"missing record", http.MethodPatch, "/rest/members/nope", types.Row{"dkp": 1.0}, http.StatusNotFound, sourceapi.CodeNotFound},
		{"duplicate insert", http.MethodPost, "/rest/members", types.Row{"id": "m1"}, http.StatusConflict, sourceapi.CodeConflict},
		{"insert without id", http.MethodPost, "/rest/members", types.Row{"name": "x"}, http.StatusBadRequest, sourceapi.CodeMissingID},
		{"source failure", http.MethodDelete, "/rest/loot_history/l1", nil, http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, tc.method, ts.URL+tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	_, ts := newServer(t)

	resp, err := http.Post(ts.URL+"/rest/members", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", decodeError(t, resp).Code)
}

func TestRealtimeStreamsChanges(t *testing.T) {
	src, ts := newServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return src.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp2 := doJSON(t, http.MethodPost, ts.URL+"/rest/members", types.Row{"id": "m9", "name": "Jaina"})
	require.Equal(t, http.StatusCreated, resp2.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ch types.Change
	require.NoError(t, conn.ReadJSON(&ch))
	assert.Equal(t, types.Members, ch.Collection)
	assert.Equal(t, types.Insert, ch.Kind)
	assert.Equal(t, "m9", ch.RecordID())
	assert.Equal(t, "Jaina", ch.New["name"])
}

func TestRealtimeEndsWithSource(t *testing.T) {
	src, ts := newServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return src.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	src.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
