package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/soil-controller/internal/logic"
)

// DefaultClientID is the client id prefix; a random suffix keeps two
// controllers on one broker from kicking each other off.
const DefaultClientID = "soil-controller"

// Options tunes the real publisher.
type Options struct {
	ClientID       string
	Username       string
	Password       string
	BufferSize     int
	PublishTimeout time.Duration
}

// pahoClient is the subset of paho.Client used by RealPublisher.
type pahoClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on (re)connect.
type RealPublisher struct {
	client  pahoClient
	timeout time.Duration

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // at least one successful connect
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. It never blocks on the broker.
func NewRealPublisher(broker string, o Options) *RealPublisher {
	p := newPublisher(nil, o)

	prefix := o.ClientID
	if prefix == "" {
		prefix = DefaultClientID
	}
	clientID := prefix + "-" + uuid.NewString()[:8]

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}

	client := paho.NewClient(opts)
	p.client = client
	client.Connect()
	log.Info().Str("broker", broker).Str("client_id", clientID).Msg("mqtt connecting")
	return p
}

func newPublisher(client pahoClient, o Options) *RealPublisher {
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	return &RealPublisher{
		client:  client,
		timeout: o.PublishTimeout,
		buf:     newRingBuffer(o.BufferSize),
	}
}

// PublishPump sends a pump event to the MQTT broker.
func (p *RealPublisher) PublishPump(event logic.PumpEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		p.buf.push(m)
		log.Debug().Str("topic", m.topic).Int("buffered", p.buf.len()).Msg("mqtt offline, message buffered")
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(p.timeout) {
		p.buf.push(m)
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		p.buf.push(m)
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	log.Info().Bool("reconnect", reconnect).Int("buffered", len(msgs)).Msg("mqtt connected")

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventReconnected})
		msgs = append([]bufferedMsg{{topic: TopicSystem, payload: payload, qos: 1}}, msgs...)
	}
	if len(msgs) > 0 {
		go p.replay(msgs)
	}
}

// replay republishes buffered messages in order. A failure re-buffers the
// remaining messages for the next connect.
func (p *RealPublisher) replay(msgs []bufferedMsg) {
	for i, m := range msgs {
		if err := p.publish(m); err != nil {
			log.Warn().Err(err).Int("remaining", len(msgs)-i-1).Msg("mqtt replay failed")
			p.mu.Lock()
			for _, rest := range msgs[i+1:] {
				p.buf.push(rest)
			}
			p.mu.Unlock()
			return
		}
	}
}

// Buffered returns the number of messages waiting for the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
