package drift

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// CorrectionSink receives accepted map->odom corrections
type CorrectionSink interface {
	PublishCorrection(tf TransformStamped) error
}

// NewCorrection builds the map->odom broadcast for a planar candidate. Roll
// and pitch are pinned to RollPitchSentinel and z to 0.
func NewCorrection(c CandidateEstimate, mapFrame, odomFrame string, stamp time.Time) TransformStamped {
	return TransformStamped{
		ID:           uuid.NewString(),
		Header:       Header{Stamp: stamp, FrameID: mapFrame},
		ChildFrameID: odomFrame,
		Transform: Transform{
			Translation: Vector3{X: c.X, Y: c.Y, Z: 0},
			Rotation:    QuaternionFromEuler(RollPitchSentinel, RollPitchSentinel, c.Yaw),
		},
	}
}

// publishTimeout bounds the wait for the broker to accept a correction
const publishTimeout = 2 * time.Second

// CorrectionPublisher broadcasts corrections over MQTT
type CorrectionPublisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *TransformStamped
	mu            sync.RWMutex
}

// NewPublisher creates a correction publisher. MQTT_PUBLISH_PREFIX overrides prefix.
func NewPublisher(client mqtt.Client, prefix string) *CorrectionPublisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &CorrectionPublisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // fire and forget, the next correction supersedes it
		retain:        true, // late subscribers get the current correction
	}
}

// Topic returns the topic corrections are published to
func (p *CorrectionPublisher) Topic() string {
	return fmt.Sprintf("%s/tf", p.publishPrefix)
}

// PublishCorrection implements CorrectionSink
func (p *CorrectionPublisher) PublishCorrection(tf TransformStamped) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(tf)
	if err != nil {
		return fmt.Errorf("marshaling correction: %w", err)
	}

	topic := p.Topic()
	token := client.Publish(topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timed out after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.mu.Lock()
	stored := tf
	p.last = &stored
	p.mu.Unlock()

	_, _, yaw := EulerFromQuaternion(tf.Transform.Rotation)
	log.Printf("[PUBLISH] %s -> %s: (%.3f, %.3f) yaw=%.2f°",
		tf.Header.FrameID, tf.ChildFrameID, tf.Transform.Translation.X, tf.Transform.Translation.Y, rad2deg(yaw))
	return nil
}

// SetClient attaches the MQTT client once it exists
func (p *CorrectionPublisher) SetClient(client mqtt.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// Last returns the most recently published correction
func (p *CorrectionPublisher) Last() (TransformStamped, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return TransformStamped{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *CorrectionPublisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published corrections are retained by the broker
func (p *CorrectionPublisher) SetRetain(retain bool) {
	p.retain = retain
}
