package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"cuview/config"
	"cuview/events"
)

const (
	TOPIC_SUFFIX   = "cu_info"
	STATUS_SUFFIX  = "status"
	publishTimeout = 5 * time.Second
	disconnectWait = 250 // ms

	defaultStatusInterval = 5 * time.Second
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	errPublishTimeout = errors.New("mqtt publish timed out")
)

// tokenPublisher is the part of mqtt.Client the publisher needs.
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends every identification as a retained JSON message to <topic-base>/cu_info.
type Publisher struct {
	*config.MQTTFlags
	eventHub *events.EventHub
	topic    string

	statusTopic    string
	statusSource   func() events.Status
	statusInterval time.Duration

	client mqtt.Client
	sender tokenPublisher
}

func NewPublisher(mqttFlags *config.MQTTFlags, eventHub *events.EventHub) *Publisher {
	return &Publisher{
		MQTTFlags: mqttFlags,
		eventHub:  eventHub,
		topic:     Topic(mqttFlags.TopicBase),

		statusTopic:    joinTopic(mqttFlags.TopicBase, STATUS_SUFFIX),
		statusInterval: defaultStatusInterval,
	}
}

// SetStatusSource makes Run also publish a retained status document to
// <topic-base>/status whenever source reports something new.
func (p *Publisher) SetStatusSource(source func() events.Status) {
	p.statusSource = source
}

// Topic joins base and the cu info suffix.
func Topic(base string) string {
	return joinTopic(base, TOPIC_SUFFIX)
}

func joinTopic(base, suffix string) string {
	base = strings.Trim(base, "/")
	if base == "" {
		return suffix
	}
	return base + "/" + suffix
}

// Payload is the message body for event.
func Payload(event *events.Event) ([]byte, error) {
	return json.Marshal(event.Record())
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect dials the broker. Later connection losses are retried in the background.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(p.Broker))

	clientID := p.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("cuview-%d", time.Now().Unix())
	}
	opts.SetClientID(clientID)
	if p.Username != "" {
		opts.SetUsername(p.Username)
		opts.SetPassword(p.Password)
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("mqtt connected, publishing to %s", p.topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	})

	p.client = mqtt.NewClient(opts)
	p.sender = p.client

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", p.Broker, token.Error())
	}
	return nil
}

// Run publishes identification events until ctx ends.
func (p *Publisher) Run(ctx context.Context) {
	_, ch, unsubscribe := p.eventHub.Subscribe()
	defer unsubscribe()

	var statusTick <-chan time.Time
	var lastStatus events.Status
	if p.statusSource != nil {
		ticker := time.NewTicker(p.statusInterval)
		defer ticker.Stop()
		statusTick = ticker.C
		lastStatus = p.publishStatus(nil)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-statusTick:
			lastStatus = p.publishStatus(&lastStatus)
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := p.publish(event); err != nil {
				log.Printf("mqtt: %v", err)
			}
		}
	}
}

func (p *Publisher) publish(event *events.Event) error {
	payload, err := Payload(event)
	if err != nil {
		return fmt.Errorf("encode cu info: %w", err)
	}
	return p.send(p.topic, payload)
}

// publishStatus sends the current status unless it equals last. A failed send
// returns last so the next tick tries again.
func (p *Publisher) publishStatus(last *events.Status) events.Status {
	status := p.statusSource()
	if last != nil && status == *last {
		return status
	}
	payload, err := json.Marshal(status)
	if err == nil {
		err = p.send(p.statusTopic, payload)
	}
	if err != nil {
		log.Printf("mqtt status: %v", err)
		if last == nil {
			return events.Status{}
		}
		return *last
	}
	return status
}

func (p *Publisher) send(topic string, payload []byte) error {
	token := p.sender.Publish(topic, byte(p.QoS), true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectWait)
	}
}
