package drift

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ObservationHandler is called for every decoded detector message
type ObservationHandler func(set ObservationSet)

// TransformHandler is called for every decoded transform message
type TransformHandler func(tfs []TransformStamped)

// MQTTClient manages the broker connection and the input subscriptions
type MQTTClient struct {
	client             mqtt.Client
	config             *Config
	observationHandler ObservationHandler
	transformHandler   TransformHandler
	isConnected        bool
	stop               chan struct{}
	stopOnce           sync.Once
	mu                 sync.RWMutex
}

// InitMQTT creates the client and starts connecting in the background.
// Environment variables override the config file. If no broker is
// configured anywhere, MQTT is disabled and this returns nil, nil.
func InitMQTT(config *Config, onObservation ObservationHandler, onTransform TransformHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("[MQTT] Disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || config.MQTT.MarkerTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but no marker topic configured")
	}

	client := &MQTTClient{
		config:             config,
		observationHandler: onObservation,
		transformHandler:   onTransform,
		stop:               make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "tudodrift"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	// Marker frames are only useful fresh; do not queue them across reconnects
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts the initial connection with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] Connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying connection in %v...", retryDelay)
		select {
		case <-c.stop:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the input topics; it runs again after every reconnect
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] Connected, subscribing to input topics...")
	c.setConnected(true)

	c.subscribe(client, c.config.MQTT.MarkerTopic, c.createObservationHandler())
	if c.config.MQTT.TransformTopic != "" {
		c.subscribe(client, c.config.MQTT.TransformTopic, c.createTransformHandler())
	}
}

func (c *MQTTClient) subscribe(client mqtt.Client, topic string, handler mqtt.MessageHandler) {
	log.Printf("[MQTT] Subscribing to %s", topic)
	token := client.Subscribe(topic, 0, handler)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		return
	}
	log.Printf("[MQTT] Subscribed to %s", topic)
}

// onConnectionLost is called when the connection drops; auto-reconnect retries
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] Reconnecting...")
}

// createObservationHandler decodes detector messages and forwards them
func (c *MQTTClient) createObservationHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		set, err := DecodeObservationSet(msg.Payload())
		if err != nil {
			log.Printf("[MQTT] Error decoding observation set on %s: %v", msg.Topic(), err)
			return
		}
		if c.observationHandler != nil {
			c.observationHandler(set)
		}
	}
}

// createTransformHandler decodes transform messages and forwards them
func (c *MQTTClient) createTransformHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		tfs, err := DecodeTransforms(msg.Payload())
		if err != nil {
			log.Printf("[MQTT] Error decoding transforms on %s: %v", msg.Topic(), err)
			return
		}
		if c.transformHandler != nil {
			c.transformHandler(tfs)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops connection attempts and closes the connection
func (c *MQTTClient) Disconnect() {
	if c.stop != nil {
		c.stopOnce.Do(func() { close(c.stop) })
	}
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting from broker...")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient around a provided mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, config *Config, onObservation ObservationHandler, onTransform TransformHandler) *MQTTClient {
	return &MQTTClient{
		client:             client,
		config:             config,
		observationHandler: onObservation,
		transformHandler:   onTransform,
		stop:               make(chan struct{}),
	}
}
