package drift

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// stalledClient accepts publishes but never completes their tokens
type stalledClient struct {
	*MockClient
}

func (c stalledClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return stalledToken{NewMockToken(nil)}
}

type stalledToken struct {
	*MockToken
}

func (stalledToken) Wait() bool                     { return false }
func (stalledToken) WaitTimeout(time.Duration) bool { return false }
func (stalledToken) Done() <-chan struct{}          { return make(chan struct{}) }

func TestNewPublisher(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	publisher := NewPublisher(nil, "")
	if publisher == nil {
		t.Fatal("NewPublisher() returned nil")
	}
	if publisher.publishPrefix != "tudodrift" {
		t.Errorf("Default prefix = %s, want tudodrift", publisher.publishPrefix)
	}
	if publisher.qos != 0 {
		t.Errorf("Default QoS = %d, want 0", publisher.qos)
	}
	if !publisher.retain {
		t.Error("Default retain should be true")
	}
	if publisher.Topic() != "tudodrift/tf" {
		t.Errorf("Topic() = %s, want tudodrift/tf", publisher.Topic())
	}
}

func TestNewPublisher_Prefix(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	if got := NewPublisher(nil, "lab").Topic(); got != "lab/tf" {
		t.Errorf("Topic() = %s, want lab/tf", got)
	}

	t.Setenv("MQTT_PUBLISH_PREFIX", "from-env")
	if got := NewPublisher(nil, "lab").Topic(); got != "from-env/tf" {
		t.Errorf("Topic() = %s, want the environment prefix to win", got)
	}
}

func TestNewCorrection(t *testing.T) {
	stamp := time.Unix(1700000000, 0)
	c := CandidateEstimate{X: 1.25, Y: -0.5, Yaw: math.Pi / 4}

	tf := NewCorrection(c, "map", "cf1/odom", stamp)

	if tf.Header.FrameID != "map" || tf.ChildFrameID != "cf1/odom" {
		t.Errorf("frames = %s -> %s, want map -> cf1/odom", tf.Header.FrameID, tf.ChildFrameID)
	}
	if !tf.Header.Stamp.Equal(stamp) {
		t.Errorf("Stamp = %v, want %v", tf.Header.Stamp, stamp)
	}
	if tf.ID == "" {
		t.Error("correction should carry an id")
	}
	if tf.Transform.Translation.X != 1.25 || tf.Transform.Translation.Y != -0.5 || tf.Transform.Translation.Z != 0 {
		t.Errorf("Translation = %+v", tf.Transform.Translation)
	}

	roll, pitch, yaw := EulerFromQuaternion(tf.Transform.Rotation)
	if math.Abs(roll-RollPitchSentinel) > 1e-9 || math.Abs(pitch-RollPitchSentinel) > 1e-9 {
		t.Errorf("roll/pitch = %g/%g, want the %g sentinel", roll, pitch, RollPitchSentinel)
	}
	if math.Abs(yaw-math.Pi/4) > 1e-9 {
		t.Errorf("yaw = %f, want pi/4", yaw)
	}

	other := NewCorrection(c, "map", "cf1/odom", stamp)
	if other.ID == tf.ID {
		t.Error("every correction should get a fresh id")
	}
}

func TestPublisher_PublishCorrection(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	client := NewMockClient()
	client.SetConnected(true)

	publisher := NewPublisher(client, "drift")
	if _, ok := publisher.Last(); ok {
		t.Error("Last() should be empty before the first publish")
	}

	tf := NewCorrection(CandidateEstimate{X: 2, Y: 3, Yaw: 0.1}, "map", "odom", time.Unix(1700000000, 0))
	if err := publisher.PublishCorrection(tf); err != nil {
		t.Fatalf("PublishCorrection() error = %v", err)
	}

	messages := client.GetPublishedMessages()
	if len(messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(messages))
	}
	msg := messages[0]
	if msg.Topic != "drift/tf" {
		t.Errorf("Topic = %s, want drift/tf", msg.Topic)
	}
	if msg.QoS != 0 || !msg.Retain {
		t.Errorf("QoS/Retain = %d/%v, want 0/true", msg.QoS, msg.Retain)
	}

	var decoded TransformStamped
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.ID != tf.ID || decoded.Transform.Translation.Y != 3 {
		t.Errorf("payload decoded as %+v", decoded)
	}
	if !strings.Contains(string(msg.Payload), `"childFrameId":"odom"`) {
		t.Errorf("payload missing childFrameId: %s", msg.Payload)
	}

	last, ok := publisher.Last()
	if !ok || last.ID != tf.ID {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	tf := NewCorrection(CandidateEstimate{X: 1}, "map", "odom", time.Now())

	if err := NewPublisher(nil, "drift").PublishCorrection(tf); err == nil {
		t.Error("expected an error without a client")
	}

	client := NewMockClient()
	publisher := NewPublisher(client, "drift")
	if err := publisher.PublishCorrection(tf); err == nil {
		t.Error("expected an error with a disconnected client")
	}
	if _, ok := publisher.Last(); ok {
		t.Error("a failed publish must not update Last()")
	}
}

func TestPublisher_PublishError(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	boom := errors.New("broker rejected")
	client.SetPublishError(boom)

	publisher := NewPublisher(client, "drift")
	err := publisher.PublishCorrection(NewCorrection(CandidateEstimate{X: 1}, "map", "odom", time.Now()))
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want it to wrap %v", err, boom)
	}
}

func TestPublisher_SetClientAndOptions(t *testing.T) {
	publisher := NewPublisher(nil, "drift")

	publisher.SetQoS(1)
	publisher.SetQoS(7) // ignored
	publisher.SetRetain(false)

	client := NewMockClient()
	client.SetConnected(true)
	publisher.SetClient(client)

	if err := publisher.PublishCorrection(NewCorrection(CandidateEstimate{Y: 1}, "map", "odom", time.Now())); err != nil {
		t.Fatalf("PublishCorrection() error = %v", err)
	}
	msg := client.GetPublishedMessages()[0]
	if msg.QoS != 1 || msg.Retain {
		t.Errorf("QoS/Retain = %d/%v, want 1/false", msg.QoS, msg.Retain)
	}
}

func TestPublisher_PublishTimeout(t *testing.T) {
	client := stalledClient{NewMockClient()}
	client.SetConnected(true)

	publisher := NewPublisher(client, "drift")
	err := publisher.PublishCorrection(NewCorrection(CandidateEstimate{X: 1}, "map", "odom", time.Now()))
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("PublishCorrection() error = %v, want a timeout", err)
	}
	if _, ok := publisher.Last(); ok {
		t.Error("an unconfirmed publish must not update Last()")
	}
}
