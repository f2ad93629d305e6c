package drift

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mqttTestConfig() *Config {
	cfg := &Config{
		MQTT: MQTTConfig{
			Broker:         "mqtt://localhost:1883",
			MarkerTopic:    "aruco/markers",
			TransformTopic: "tf",
		},
		Layout: "world.json",
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := &Config{MQTT: MQTTConfig{MarkerTopic: "aruco/markers"}}

	client, err := InitMQTT(config, nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoMarkerTopic(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := &Config{MQTT: MQTTConfig{Broker: "mqtt://localhost:1883"}}

	_, err := InitMQTT(config, nil, nil)
	assert.Error(t, err)
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected(), "Client should be connected after setConnected(true)")

	client.setConnected(false)
	assert.False(t, client.IsConnected(), "Client should not be connected after setConnected(false)")
}

func TestMQTTClient_OnConnectSubscribes(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)

	var got []ObservationSet
	var gotTFs []TransformStamped
	c := newMQTTClientWithMock(mockClient, mqttTestConfig(),
		func(set ObservationSet) { got = append(got, set) },
		func(tfs []TransformStamped) { gotTFs = append(gotTFs, tfs...) },
	)

	c.onConnect(mockClient)
	assert.True(t, c.IsConnected())

	mockClient.SimulateMessage("aruco/markers", []byte(observationJSON))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Markers, 2)

	mockClient.SimulateMessage("tf", []byte(`{"header":{"frameId":"cf1/odom"},"childFrameId":"cf1/base_link","transform":{"rotation":{"w":1}}}`))
	require.Len(t, gotTFs, 1)
	assert.Equal(t, "cf1/base_link", gotTFs[0].ChildFrameID)
}

func TestMQTTClient_NoTransformTopic(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)

	cfg := mqttTestConfig()
	cfg.MQTT.TransformTopic = ""

	called := false
	c := newMQTTClientWithMock(mockClient, cfg, nil, func([]TransformStamped) { called = true })
	c.onConnect(mockClient)

	mockClient.SimulateMessage("tf", []byte(`{"header":{"frameId":"a"},"childFrameId":"b"}`))
	assert.False(t, called, "transform topic should not be subscribed")
}

func TestMQTTClient_BadPayloadsAreDropped(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)

	calls := 0
	c := newMQTTClientWithMock(mockClient, mqttTestConfig(), func(ObservationSet) { calls++ }, nil)
	c.onConnect(mockClient)

	mockClient.SimulateMessage("aruco/markers", []byte("not json"))
	mockClient.SimulateMessage("aruco/markers", []byte(`{"header":{"frameId":"cam"},"markers":[]}`))
	mockClient.SimulateMessage("aruco/markers", nil)
	assert.Equal(t, 0, calls)

	// a nil transform handler must not panic
	mockClient.SimulateMessage("tf", []byte(`{"header":{"frameId":"a"},"childFrameId":"b"}`))
}

func TestMQTTClient_ConnectionLost(t *testing.T) {
	mockClient := NewMockClient()
	c := newMQTTClientWithMock(mockClient, mqttTestConfig(), nil, nil)
	c.setConnected(true)

	c.onConnectionLost(mockClient, assert.AnError)
	assert.False(t, c.IsConnected())
}

func TestMQTTClient_Disconnect(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)
	c := newMQTTClientWithMock(mockClient, mqttTestConfig(), nil, nil)
	c.setConnected(true)

	c.Disconnect()
	c.Disconnect() // idempotent

	assert.False(t, c.IsConnected())
	assert.False(t, mockClient.IsConnected())
	assert.Same(t, mockClient, c.GetClient())
}

// TestMQTTClient_ConcurrentAccess tests thread-safe access to client state
func TestMQTTClient_ConcurrentAccess(t *testing.T) {
	client := &MQTTClient{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				client.setConnected(j%2 == 0)
				_ = client.IsConnected()
			}
		}()
	}
	wg.Wait()
}
