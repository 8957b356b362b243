package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/api"
	"github.com/conducthq/conduct/engine"
	"github.com/conducthq/conduct/job"
	"github.com/conducthq/conduct/metrics"
	"github.com/conducthq/conduct/store/memory"
)

type echoParams struct {
	Message string `json:"message"`
}

type testServer struct {
	*httptest.Server
	eng     *engine.Engine
	release chan struct{}
}

func newTestServer(t *testing.T, cfg conduct.Config) *testServer {
	t.Helper()

	m := metrics.New()
	eng, err := engine.Build(
		engine.WithStore(memory.New()),
		engine.WithConfig(cfg),
		engine.WithExtension(m),
	)
	require.NoError(t, err)

	release := make(chan struct{}, 16)
	engine.Register(eng, job.NewDefinition("echo", job.ClassLight,
		func(_ context.Context, rt job.Runtime, p echoParams) (*job.Result, error) {
			rt.Log(p.Message)
			return &job.Result{}, nil
		}))
	engine.Register(eng, job.NewDefinition("block", job.ClassHeavy,
		func(_ context.Context, rt job.Runtime, _ struct{}) (*job.Result, error) {
			rt.Log("working")
			select {
			case <-release:
				return &job.Result{}, nil
			case <-rt.Done():
				return nil, conduct.ErrCancelled
			}
		}))

	require.NoError(t, eng.Start(context.Background()))

	a := api.New(eng,
		api.WithMetricsHandler(m.Handler()),
		api.WithPingInterval(time.Minute),
	)
	srv := httptest.NewServer(a.Handler())

	t.Cleanup(func() {
		srv.Close()
		close(release)
		_ = eng.Stop(context.Background())
	})
	return &testServer{Server: srv, eng: eng, release: release}
}

func (s *testServer) do(t *testing.T, method, path, owner string, body any) *http.Response {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, buf)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set(api.DefaultIdentityHeader, owner)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJob(t *testing.T, resp *http.Response) api.JobResponse {
	t.Helper()
	defer resp.Body.Close()
	var j api.JobResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&j))
	return j
}

func (s *testServer) waitForState(t *testing.T, owner, jobID, want string) api.JobResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last api.JobResponse
	for time.Now().Before(deadline) {
		resp := s.do(t, http.MethodGet, "/v1/jobs/"+jobID, owner, nil)
		if resp.StatusCode == http.StatusOK {
			last = decodeJob(t, resp)
			if last.State == want {
				return last
			}
		} else {
			resp.Body.Close()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s, last: %+v", jobID, want, last)
	return last
}

func TestSubmitAndGet(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{
		Command: "echo",
		Params:  json.RawMessage(`{"message":"hello"}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJob(t, resp)

	assert.True(t, strings.HasPrefix(created.ID, "job_"), "id: %s", created.ID)
	assert.Equal(t, "alice", created.OwnerID)
	assert.Equal(t, "echo", created.Command)
	assert.Equal(t, "light", created.Class)

	done := s.waitForState(t, "alice", created.ID, "done")
	assert.Equal(t, "hello", done.LogText)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)
	assert.Zero(t, done.QueuePosition)
}

func TestSubmitRejections(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	tests := []struct {
		name string
		body api.SubmitJobRequest
		want int
	}{
		{"unknown command", api.SubmitJobRequest{Command: "nope"}, http.StatusUnprocessableEntity},
		{"schema violation", api.SubmitJobRequest{Command: "echo", Params: json.RawMessage(`{"bogus":1}`)}, http.StatusUnprocessableEntity},
		{"missing command", api.SubmitJobRequest{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", tt.body)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)

			var e api.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestMissingIdentity(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	resp := s.do(t, http.MethodPost, "/v1/jobs", "", api.SubmitJobRequest{Command: "echo"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetHidesForeignJobs(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{
		Command: "echo",
		Params:  json.RawMessage(`{"message":"hi"}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJob(t, resp)

	resp = s.do(t, http.MethodGet, "/v1/jobs/"+created.ID, "mallory", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/jobs/not-a-job-id", "alice", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListJobs(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	for i := range 3 {
		resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{
			Command: "echo",
			Params:  json.RawMessage(fmt.Sprintf(`{"message":"n%d"}`, i)),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}
	resp := s.do(t, http.MethodPost, "/v1/jobs", "bob", api.SubmitJobRequest{
		Command: "echo",
		Params:  json.RawMessage(`{"message":"x"}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodGet, "/v1/jobs", "alice", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []api.JobResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	require.Len(t, jobs, 3)
	for _, j := range jobs {
		assert.Equal(t, "alice", j.OwnerID)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{Command: "block"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJob(t, resp)
	s.waitForState(t, "alice", created.ID, "running")

	resp = s.do(t, http.MethodPost, "/v1/jobs/"+created.ID+"/cancel", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cancelled := s.waitForState(t, "alice", created.ID, "cancelled")
	assert.Contains(t, cancelled.LogText, "working")

	// Cancelling a terminal job succeeds without changing anything.
	resp = s.do(t, http.MethodPost, "/v1/jobs/"+created.ID+"/cancel", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decodeJob(t, resp)
	assert.Equal(t, "cancelled", again.State)
}

func TestDeleteRequiresTerminal(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{Command: "block"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJob(t, resp)
	s.waitForState(t, "alice", created.ID, "running")

	resp = s.do(t, http.MethodDelete, "/v1/jobs/"+created.ID, "alice", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	s.release <- struct{}{}
	s.waitForState(t, "alice", created.ID, "done")

	resp = s.do(t, http.MethodDelete, "/v1/jobs/"+created.ID, "alice", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/jobs/"+created.ID, "alice", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimited(t *testing.T) {
	cfg := conduct.DefaultConfig()
	cfg.SubmitRate = 0.001
	cfg.SubmitBurst = 1
	s := newTestServer(t, cfg)

	resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{
		Command: "echo",
		Params:  json.RawMessage(`{"message":"one"}`),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{
		Command: "echo",
		Params:  json.RawMessage(`{"message":"two"}`),
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStreamTerminalJob(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{
		Command: "echo",
		Params:  json.RawMessage(`{"message":"streamed line"}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJob(t, resp)
	s.waitForState(t, "alice", created.ID, "done")

	resp = s.do(t, http.MethodGet, "/v1/jobs/"+created.ID+"/stream", "alice", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// A terminal job's stream replays and closes, so the body is finite.
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "event: message")
	assert.Contains(t, text, `"line":"streamed line"`)
	assert.Contains(t, text, "event: done")
	assert.Contains(t, text, `"state":"done"`)
}

func TestStreamQueuedJob(t *testing.T) {
	cfg := conduct.DefaultConfig()
	cfg.GlobalHeavySlots = 1
	cfg.PerUserHeavySlots = 0
	s := newTestServer(t, cfg)

	resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{Command: "block"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	blocker := decodeJob(t, resp)
	s.waitForState(t, "alice", blocker.ID, "running")

	resp = s.do(t, http.MethodPost, "/v1/jobs", "bob", api.SubmitJobRequest{Command: "block"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	queued := decodeJob(t, resp)
	assert.Equal(t, 1, queued.QueuePosition)

	resp = s.do(t, http.MethodGet, "/v1/jobs/"+queued.ID+"/stream", "bob", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: queued")
	assert.NotContains(t, string(body), "event: done")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	resp := s.do(t, http.MethodPost, "/v1/jobs", "alice", api.SubmitJobRequest{
		Command: "echo",
		Params:  json.RawMessage(`{"message":"hi"}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJob(t, resp)
	s.waitForState(t, "alice", created.ID, "done")

	resp = s.do(t, http.MethodGet, "/metrics", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "conduct_jobs_submitted_total")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, conduct.DefaultConfig())

	resp := s.do(t, http.MethodGet, "/healthz", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
