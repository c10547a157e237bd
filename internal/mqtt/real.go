package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

// DefaultBufferSize is how many messages are held while the broker is unreachable.
const DefaultBufferSize = 100

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int
	Logger     zerolog.Logger
}

// pahoClient is the subset of paho.Client the publisher uses.
type pahoClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker.
// Messages published while disconnected are buffered and replayed, oldest
// first, when the connection comes back.
type RealPublisher struct {
	client pahoClient
	logger zerolog.Logger

	mu            sync.Mutex
	connected     bool
	everConnected bool
	buffer        *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. It connects in
// the background and keeps retrying, so it never fails.
func NewRealPublisher(opts Options) *RealPublisher {
	p := newPublisher(nil, opts)

	clientID := opts.ClientID
	if clientID == "" {
		clientID = "rig-monitor"
	}
	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(willPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleConnectionLost(err) })

	client := paho.NewClient(co)
	p.client = client
	client.Connect()
	return p
}

func newPublisher(client pahoClient, opts Options) *RealPublisher {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RealPublisher{
		client: client,
		logger: opts.Logger,
		buffer: newRingBuffer(size),
	}
}

// handleConnect replays buffered messages. Runs on paho's goroutine.
func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everConnected
	p.everConnected = true
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	p.logger.Info().Int("buffered", len(pending)).Msg("mqtt connected")

	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.logger.Warn().Err(err).Str("topic", m.topic).Msg("replay failed")
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventReconnected})
		if err := p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			p.logger.Warn().Err(err).Msg("publish reconnected event failed")
		}
	}
}

func (p *RealPublisher) handleConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn().Err(err).Msg("mqtt connection lost")
}

// PublishFault sends a fault history entry to the broker (QoS 1, not retained).
func (p *RealPublisher) PublishFault(entry logic.HistoryEntry) error {
	payload, err := FormatFaultPayload(entry)
	if err != nil {
		return fmt.Errorf("format fault payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicFaults, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the broker (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		if p.buffer.push(m) {
			p.logger.Warn().Int("capacity", len(p.buffer.buf)).Msg("mqtt buffer full, dropping oldest")
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker. Buffered messages are discarded.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	p.connected = false
	if n := p.buffer.len(); n > 0 {
		p.logger.Warn().Int("buffered", n).Msg("discarding unsent mqtt messages")
	}
	p.mu.Unlock()
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
