package app

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/birther/internal/calibration"
	"github.com/relabs-tech/birther/internal/config"
)

const publishTimeout = 5 * time.Second

// publishClient is the part of mqtt.Client the publisher uses.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ValidityMessage is the published outcome of one validity check.
type ValidityMessage struct {
	File    string    `json:"file"`
	Serial  string    `json:"serial"`
	Checked time.Time `json:"checked"`
	Passed  bool      `json:"passed"`
	Lines   []string  `json:"lines"`
}

// Publisher sends results and progress to the broker.
type Publisher struct {
	client publishClient
	cfg    *config.Config
}

// NewPublisher wraps an already connected client.
func NewPublisher(client publishClient, cfg *config.Config) *Publisher {
	return &Publisher{client: client, cfg: cfg}
}

// ConnectPublisher connects to the configured broker.
func ConnectPublisher(cfg *config.Config) (*Publisher, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDBirther)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, token.Error()
	}
	log.Printf("publisher: connected to MQTT broker at %s", cfg.MQTTBroker)
	return NewPublisher(client, cfg), func() { client.Disconnect(250) }, nil
}

func (p *Publisher) publish(topic string, qos byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("publisher: marshal for %s: %w", topic, err)
	}
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publisher: %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publisher: %s: %w", topic, err)
	}
	return nil
}

// PublishCalibration sends a finished calibration to <topic>/<serial>.
func (p *Publisher) PublishCalibration(res *calibration.Result) error {
	return p.publish(p.cfg.TopicCalibration+"/"+res.Device.Serial, 1, res)
}

// PublishValidity sends a validity outcome to <topic>/<serial>.
func (p *Publisher) PublishValidity(msg ValidityMessage) error {
	return p.publish(p.cfg.TopicValidity+"/"+msg.Serial, 1, msg)
}

// PublishProgress sends a calibration progress event. Delivery is best effort.
func (p *Publisher) PublishProgress(ev calibration.Event) error {
	return p.publish(p.cfg.TopicProgress, 0, ev)
}
