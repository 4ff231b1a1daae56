// Package mqtt is the MQTT-backed implementation of publish.Publisher,
// grounded on the teacher's MQTTEmitter
// (References/orion-prototipe/internal/emitter/mqtt.go): same
// auto-reconnect client options, same connect-with-timeout and
// publish-with-timeout discipline. It is the only package in this
// module that imports paho — the core depends on the publish.Publisher
// interface, never on this package directly.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kaben/fusion-core/internal/publish"
)

// Topics names the broker topics each output kind publishes to.
type Topics struct {
	Odometry  string
	Frame     string
	PoseGraph string
}

// DefaultTopics returns the conventional topic layout.
func DefaultTopics(prefix string) Topics {
	return Topics{
		Odometry:  prefix + "/odometry",
		Frame:     prefix + "/frame",
		PoseGraph: prefix + "/posegraph",
	}
}

// Publisher is a publish.Publisher backed by an MQTT broker connection.
type Publisher struct {
	client paho.Client
	topics Topics

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// New creates a disconnected Publisher; call Connect before use.
func New(broker, clientID string, topics Topics) *Publisher {
	p := &Publisher{topics: topics, published: make(map[string]uint64)}

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(paho.Client) {
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
		slog.Info("mqtt connection established", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", broker)
	}

	p.client = paho.NewClient(opts)
	return p
}

// Connect blocks until the broker connection succeeds or times out.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Disconnect closes the broker connection with a short grace period.
func (p *Publisher) Disconnect() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *Publisher) publish(topic string, qos byte, v any) error {
	if !p.isConnected() {
		p.bumpErrors()
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.bumpErrors()
		return fmt.Errorf("marshal payload: %w", err)
	}
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		p.bumpErrors()
		return fmt.Errorf("publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		p.bumpErrors()
		return fmt.Errorf("publish failed on %s: %w", topic, err)
	}
	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()
	return nil
}

func (p *Publisher) PublishOdometry(o publish.Odometry) error {
	return p.publish(p.topics.Odometry, 0, o)
}

func (p *Publisher) PublishFrame(f publish.FrameOutput) error {
	return p.publish(p.topics.Frame, 1, f)
}

func (p *Publisher) PublishPoseGraph(u publish.PoseGraphUpdate) error {
	return p.publish(p.topics.PoseGraph, 1, u)
}

func (p *Publisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Publisher) bumpErrors() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Stats reports publish counters per topic plus the error count.
func (p *Publisher) Stats() (published map[string]uint64, errors uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		out[k] = v
	}
	return out, p.errors
}
