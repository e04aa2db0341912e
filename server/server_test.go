package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factoryops"
	"github.com/hupe1980/factoryops/capability"
	"github.com/hupe1980/factoryops/config"
	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/internal/testutil"
	"github.com/hupe1980/factoryops/transcode"
)

const body = `{"machine_id":"M-1","telemetry":{"temp":91}}`

func newWorkflow(t *testing.T, caps ...core.Capability) *factoryops.Orchestrator {
	t.Helper()
	reg, err := capability.NewRegistry(caps...)
	require.NoError(t, err)

	members := make([]config.MemberConfig, 0, len(caps))
	for _, c := range caps {
		members = append(members, config.MemberConfig{Name: c.Info().Name, Kind: config.KindManaged})
	}
	return factoryops.New(func(o *factoryops.Options) {
		o.Members = members
		o.Managed = reg
	})
}

func reply(name, text string) *testutil.ScriptedCapability {
	return testutil.NewCapability(name, testutil.Emit(testutil.Text(name, text)))
}

type recordingMirror struct {
	mu      sync.Mutex
	events  []string
	results []*core.WorkflowResponse
}

func (m *recordingMirror) PublishEvent(_ string, ev transcode.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev.Name)
	return nil
}

func (m *recordingMirror) PublishResult(_ string, resp *core.WorkflowResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, resp)
	return errors.New("bus down")
}

type sseRecord struct {
	event string
	data  string
}

func readSSE(t *testing.T, r io.Reader) []sseRecord {
	t.Helper()
	var (
		out []sseRecord
		cur sseRecord
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.event != "" {
				out = append(out, cur)
			}
			cur = sseRecord{}
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func eventNames(records []sseRecord) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.event
	}
	return names
}

func TestServer_Health(t *testing.T) {
	srv := httptest.NewServer(New(newWorkflow(t)).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"Status":"Healthy"`)
	assert.Contains(t, string(b), `"Timestamp":"`)
}

func TestServer_Analyze_TwoSteps(t *testing.T) {
	mirror := &recordingMirror{}
	x := testutil.NewCapability("AgentX", testutil.Reply("AgentX", func(string) string { return "r1" }))
	y := testutil.NewCapability("AgentY", testutil.Reply("AgentY", func(in string) string { return "r2" }))
	srv := httptest.NewServer(New(newWorkflow(t, x, y), func(o *Options) { o.Mirror = mirror }).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analyze_machine", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Run-Id"))

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"agentSteps": [
			{"agentName":"AgentX","toolCalls":[],"textOutput":"r1","finalMessage":"r1"},
			{"agentName":"AgentY","toolCalls":[],"textOutput":"r2","finalMessage":"r2"}
		],
		"finalMessage": "r2"
	}`, string(b))

	assert.Equal(t, []string{body}, x.Inputs())
	assert.Equal(t, []string{"r1"}, y.Inputs())
	assert.Len(t, mirror.results, 1)
}

func TestServer_Analyze_FailOpen(t *testing.T) {
	x := testutil.NewCapability("AgentX", testutil.Fail(errors.New("not found")))
	y := testutil.NewCapability("AgentY", testutil.Reply("AgentY", func(in string) string { return "saw: " + in }))
	srv := httptest.NewServer(New(newWorkflow(t, x, y)).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analyze_machine", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Error processing AgentX request: not found"}, y.Inputs())
}

func TestServer_Analyze_Errors(t *testing.T) {
	wf := factoryops.New(func(o *factoryops.Options) {
		o.Members = []config.MemberConfig{{Name: "Missing", Kind: config.KindManaged}}
		o.Managed = core.ResolverFunc(func(_ context.Context, name string) (core.Capability, error) {
			return nil, core.NewResolutionError(core.NotFound, name, nil)
		})
	})
	srv := httptest.NewServer(New(wf).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analyze_machine", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"detail":"resolve required member Missing: resolve Missing: not found"}`, string(b))

	resp, err = http.Post(srv.URL+"/api/analyze_machine", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Stream_Events(t *testing.T) {
	mirror := &recordingMirror{}
	x := testutil.NewCapability("AgentX", testutil.Emit(
		testutil.Call("AgentX", "c1", "lookup", `{"k":1}`),
		testutil.Result("AgentX", "c1", "lookup", "42"),
		testutil.Fragment("AgentX", "r1"),
		testutil.Text("AgentX", "r1"),
	))
	srv := httptest.NewServer(New(newWorkflow(t, x, reply("AgentY", "r2")), func(o *Options) { o.Mirror = mirror }).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analyze_machine_stream", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	records := readSSE(t, resp.Body)
	want := []string{
		"agent_started", "tool_call", "tool_result", "text_token", "agent_complete",
		"agent_started", "text_token", "agent_complete",
		"workflow_complete", "done",
	}
	assert.Equal(t, want, eventNames(records))

	assert.JSONEq(t, `{"agentName":"AgentX","toolName":"lookup","result":"42"}`, records[2].data)
	assert.JSONEq(t, `{"agentName":"AgentX","status":"done","toolCalls":[{"toolName":"lookup","arguments":"{\"k\":1}","result":"42"}],"textOutput":"r1","finalMessage":"r1"}`, records[4].data)
	assert.JSONEq(t, `{"finalMessage":"r2"}`, records[8].data)
	assert.JSONEq(t, `{}`, records[9].data)

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	assert.Equal(t, want, mirror.events)
}

func TestServer_Stream_InfraError(t *testing.T) {
	wf := factoryops.New(func(o *factoryops.Options) {
		o.Members = []config.MemberConfig{{Name: "Peer", Kind: config.KindPeer, URL: "http://peer.invalid"}}
		o.Peers = core.ResolverFunc(func(_ context.Context, url string) (core.Capability, error) {
			return nil, core.NewResolutionError(core.Unreachable, url, nil)
		})
	})
	srv := httptest.NewServer(New(wf).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analyze_machine_stream", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	records := readSSE(t, resp.Body)
	assert.Equal(t, []string{"error", "done"}, eventNames(records))
	assert.Contains(t, records[0].data, "unreachable")
}

// cancellingWriter records events and cancels the client context once it
// sees agent_started for the given agent.
type cancellingWriter struct {
	events []transcode.Event
	agent  string
	cancel context.CancelFunc
}

func (w *cancellingWriter) WriteEvent(ev transcode.Event) error {
	w.events = append(w.events, ev)
	if s, ok := ev.Data.(transcode.AgentStarted); ok && s.AgentName == w.agent {
		w.cancel()
	}
	return nil
}

func TestServer_Relay_ClientCancellation(t *testing.T) {
	third := reply("AgentZ", "r3")
	wf := newWorkflow(t,
		reply("AgentX", "r1"),
		testutil.NewCapability("AgentY", testutil.Block(nil)),
		third,
	)
	mirror := &recordingMirror{}
	s := New(wf, func(o *Options) { o.Mirror = mirror })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &cancellingWriter{agent: "AgentY", cancel: cancel}

	s.relay(ctx, "run-1", factoryops.AnalyzeRequest{MachineID: "M-1"}, w)

	last := w.events[len(w.events)-1]
	assert.Equal(t, transcode.EventAgentStarted, last.Name)
	assert.Equal(t, transcode.AgentStarted{AgentName: "AgentY"}, last.Data)
	for _, ev := range w.events {
		assert.NotEqual(t, transcode.EventError, ev.Name)
		assert.NotEqual(t, transcode.EventDone, ev.Name)
	}
	assert.Empty(t, third.Inputs())
}

func TestServer_WebSocket(t *testing.T) {
	srv := httptest.NewServer(New(newWorkflow(t, reply("AgentX", "r1"))).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/analyze_machine_ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(body)))

	var names []string
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		names = append(names, msg.Event)
		if msg.Event == transcode.EventDone {
			break
		}
	}

	assert.Equal(t, []string{"agent_started", "text_token", "agent_complete", "workflow_complete", "done"}, names)
}

func TestServer_CORS(t *testing.T) {
	srv := httptest.NewServer(New(newWorkflow(t), func(o *Options) {
		o.AllowedOrigins = []string{"http://dashboard.local"}
	}).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/analyze_machine", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.local")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
