package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/soil-controller/internal/logic"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeClient struct {
	mu           sync.Mutex
	open         bool
	publishErr   error
	timeout      bool
	published    []bufferedMsg
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr == nil && !c.timeout {
		c.published = append(c.published, bufferedMsg{topic: topic, payload: payload.([]byte), qos: qos, retained: retained})
	}
	return &fakeToken{err: c.publishErr, timeout: c.timeout}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *fakeClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.published))
	for i, m := range c.published {
		out[i] = m.topic
	}
	return out
}

func TestRealPublisherPublishesWhenConnected(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisher(c, Options{})

	require.NoError(t, p.PublishPump(pumpEvent(logic.PumpOn)))
	require.NoError(t, p.PublishSystem(SystemEvent{Event: EventStartup, Retained: true}))

	require.Len(t, c.published, 2)
	assert.Equal(t, Topic, c.published[0].topic)
	assert.Equal(t, byte(0), c.published[0].qos)
	assert.False(t, c.published[0].retained)
	assert.Equal(t, TopicSystem, c.published[1].topic)
	assert.Equal(t, byte(1), c.published[1].qos)
	assert.True(t, c.published[1].retained)
	assert.Equal(t, 0, p.Buffered())
}

func TestRealPublisherBuffersWhileOffline(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, Options{BufferSize: 10})

	require.NoError(t, p.PublishPump(pumpEvent(logic.PumpOn)))
	require.NoError(t, p.PublishPump(pumpEvent(logic.PumpOff)))
	assert.Empty(t, c.topics())
	assert.Equal(t, 2, p.Buffered())
	assert.False(t, p.IsConnected())

	c.setOpen(true)
	p.onConnect()

	require.Eventually(t, func() bool { return len(c.topics()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.Buffered())
	assert.True(t, p.IsConnected())
}

func TestRealPublisherReconnectAnnounces(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisher(c, Options{})

	p.onConnect() // first connect: nothing to replay
	assert.Never(t, func() bool { return len(c.topics()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	c.setOpen(false)
	require.NoError(t, p.PublishPump(pumpEvent(logic.PumpOn)))
	c.setOpen(true)
	p.onConnect()

	require.Eventually(t, func() bool { return len(c.topics()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{TopicSystem, Topic}, c.topics())
	assert.Contains(t, string(c.published[0].payload), `"RECONNECTED"`)
}

func TestRealPublisherFailureBuffers(t *testing.T) {
	c := &fakeClient{open: true, publishErr: errors.New("not authorised")}
	p := newPublisher(c, Options{})

	err := p.PublishPump(pumpEvent(logic.PumpOn))
	assert.ErrorContains(t, err, "not authorised")
	assert.Equal(t, 1, p.Buffered())

	c.mu.Lock()
	c.publishErr = nil
	c.timeout = true
	c.mu.Unlock()
	err = p.PublishSystem(SystemEvent{Event: EventHeartbeat})
	assert.ErrorContains(t, err, "timeout")
	assert.Equal(t, 2, p.Buffered())
}

func TestRealPublisherReplayFailureKeepsOrder(t *testing.T) {
	c := &fakeClient{open: true, publishErr: errors.New("broken pipe")}
	p := newPublisher(c, Options{})

	msgs := []bufferedMsg{
		{topic: "a", payload: []byte{1}},
		{topic: "b", payload: []byte{2}},
		{topic: "c", payload: []byte{3}},
	}
	p.replay(msgs)

	p.mu.Lock()
	got := p.buf.drainAll()
	p.mu.Unlock()
	assert.Equal(t, []byte{1, 2, 3}, payloads(got))
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, Options{})
	require.NoError(t, p.Close())
	assert.True(t, c.disconnected)
}
