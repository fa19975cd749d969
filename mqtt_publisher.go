package main

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	dto "github.com/prometheus/client_model/go"
)

// MQTTPublisher announces session lifecycle and marked events to the
// lab broker, and publishes periodic metric snapshots gathered from
// the Prometheus registry.
type MQTTPublisher struct {
	client  mqtt.Client
	config  *MQTTConfig
	metrics *Metrics
	done    chan struct{}
}

// MetricPayload is one metric snapshot message.
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// EventPayload is one session/event announcement.
type EventPayload struct {
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
	Label     string `json:"label,omitempty"`
	EventID   uint64 `json:"event_id,omitempty"`
}

// generateClientID creates a random client ID for the MQTT connection
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "eegd_" + hex.EncodeToString(bytes)
}

// loadTLSConfig loads TLS configuration from files
func loadTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{InsecureSkipVerify: tlsConfig.Insecure}

	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher connects to the broker and starts the periodic
// metric snapshot loop.
func NewMQTTPublisher(config *MQTTConfig, metrics *Metrics) (*MQTTPublisher, error) {
	scheme := "tcp"
	if config.TLS.Enabled {
		scheme = "ssl"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, config.Broker, config.Port)).
		SetClientID(generateClientID()).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	if config.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(config.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Printf("MQTT publisher connected to %s:%d (prefix %s)", config.Broker, config.Port, config.TopicPrefix)

	pub := &MQTTPublisher{
		client:  client,
		config:  config,
		metrics: metrics,
		done:    make(chan struct{}),
	}
	if metrics != nil {
		go pub.metricLoop()
	}
	return pub, nil
}

// publish serializes payload as JSON onto prefix/topic at QoS 0.
func (p *MQTTPublisher) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal MQTT payload: %v", err)
		return
	}
	fullTopic := p.config.TopicPrefix + "/" + topic
	if token := p.client.Publish(fullTopic, 0, false, data); token.Wait() && token.Error() != nil {
		log.Printf("Failed to publish to %s: %v", fullTopic, token.Error())
	}
}

// PublishSessionStart announces a new recording session.
func (p *MQTTPublisher) PublishSessionStart(sessionID string) {
	p.publish("session/start", EventPayload{Timestamp: time.Now().Unix(), SessionID: sessionID})
}

// PublishSessionStop announces a sealed session.
func (p *MQTTPublisher) PublishSessionStop(sessionID string) {
	p.publish("session/stop", EventPayload{Timestamp: time.Now().Unix(), SessionID: sessionID})
}

// PublishEvent announces one marked event.
func (p *MQTTPublisher) PublishEvent(sessionID, label string, eventID uint64) {
	p.publish("event", EventPayload{
		Timestamp: time.Now().Unix(),
		SessionID: sessionID,
		Label:     label,
		EventID:   eventID,
	})
}

// metricLoop publishes a metric snapshot on the configured interval.
func (p *MQTTPublisher) metricLoop() {
	ticker := time.NewTicker(time.Duration(p.config.IntervalS) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.publishMetricSnapshot()
		case <-p.done:
			return
		}
	}
}

// publishMetricSnapshot gathers the registry and flattens counter and
// gauge values into one payload.
func (p *MQTTPublisher) publishMetricSnapshot() {
	families, err := p.metrics.Registry().Gather()
	if err != nil {
		log.Printf("Failed to gather metrics for MQTT: %v", err)
		return
	}

	payload := MetricPayload{
		Timestamp: time.Now().Unix(),
		Metrics:   make(map[string]float64),
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			name := family.GetName()
			for _, label := range metric.GetLabel() {
				name += "_" + label.GetValue()
			}
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				payload.Metrics[name] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				payload.Metrics[name] = metric.GetGauge().GetValue()
			}
		}
	}
	p.publish("metrics", payload)
}

// Close stops the snapshot loop and disconnects from the broker.
func (p *MQTTPublisher) Close() {
	close(p.done)
	p.client.Disconnect(250)
}
