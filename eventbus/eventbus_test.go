package eventbus

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/transcode"
)

func newPublisher(t *testing.T) *Publisher {
	t.Helper()
	bus, err := StartEmbedded(RandomPort)
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	p, err := Connect(bus.ClientURL(), func(o *Options) { o.SubjectPrefix = "test" })
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func receive(t *testing.T, ch <-chan *nats.Msg) *nats.Msg {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "factoryops.run.r1.text_token", SubjectRunEvent("factoryops", "r1", transcode.EventTextToken))
	assert.Equal(t, "factoryops.run.r1.result", SubjectRunResult("factoryops", "r1"))
	assert.Equal(t, "factoryops.run.r1.>", SubjectRunAll("factoryops", "r1"))
}

func TestPublisher_PublishEvent(t *testing.T) {
	p := newPublisher(t)

	received := make(chan *nats.Msg, 4)
	_, err := p.Subscribe("r1", func(msg *nats.Msg) { received <- msg })
	require.NoError(t, err)
	require.NoError(t, p.Flush())

	tc := transcode.New()
	for _, ev := range tc.Translate(core.StepStarted{ExecutorID: "AgentX"}) {
		require.NoError(t, p.PublishEvent("r1", ev))
	}
	require.NoError(t, p.PublishEvent("r1", tc.Done()))
	require.NoError(t, p.Flush())

	msg := receive(t, received)
	assert.Equal(t, "test.run.r1.agent_started", msg.Subject)
	assert.JSONEq(t, `{"agentName":"AgentX"}`, string(msg.Data))

	msg = receive(t, received)
	assert.Equal(t, "test.run.r1.done", msg.Subject)
	assert.JSONEq(t, `{}`, string(msg.Data))
}

func TestPublisher_PublishResult(t *testing.T) {
	p := newPublisher(t)

	received := make(chan *nats.Msg, 1)
	_, err := p.Subscribe("r2", func(msg *nats.Msg) { received <- msg })
	require.NoError(t, err)
	require.NoError(t, p.Flush())

	require.NoError(t, p.PublishResult("r2", &core.WorkflowResponse{
		AgentSteps:   []core.StepResult{{AgentName: "AgentX", TextOutput: "r1", FinalMessage: core.StringPtr("r1")}},
		FinalMessage: core.StringPtr("r1"),
	}))
	require.NoError(t, p.Flush())

	msg := receive(t, received)
	assert.Equal(t, "test.run.r2.result", msg.Subject)
	assert.JSONEq(t, `{"agentSteps":[{"agentName":"AgentX","toolCalls":[],"textOutput":"r1","finalMessage":"r1"}],"finalMessage":"r1"}`, string(msg.Data))
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1")
	require.Error(t, err)
}
