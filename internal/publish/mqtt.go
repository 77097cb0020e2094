// internal/publish/mqtt.go
package publish

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fcolinet/wxmodbus/internal/config"
	"github.com/fcolinet/wxmodbus/internal/poll"
)

// MQTTSink publishes each reading as a JSON record to one topic. It
// satisfies poll.Sink. Broker reconnection is handled by the paho client;
// the polling side never blocks on it beyond the publish call.
type MQTTSink struct {
	cfg    *config.MQTTConfig
	client mqtt.Client
	logger *log.Logger
}

// NewMQTTSink builds the client; Connect must be called before use.
func NewMQTTSink(cfg *config.MQTTConfig, logger *log.Logger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Hostname, cfg.Port)
	if cfg.Cert != "" {
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Hostname, cfg.Port)
	}
	opts.AddBroker(broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		logger.Println("mqtt: connected to broker")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Printf("mqtt: connection lost: %v", err)
	}
	opts.OnReconnecting = func(c mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Println("mqtt: reconnecting to broker")
	}

	if cfg.Cert != "" {
		tlsConfig, err := newTLSConfig(cfg.Cert)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	return &MQTTSink{cfg: cfg, client: client, logger: logger}, nil
}

func newTLSConfig(caFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("mqtt: no certificates parsed from %s", caFile)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// Connect dials the broker and waits for the handshake.
func (s *MQTTSink) Connect() error {
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}

// Publish sends one reading as JSON.
func (s *MQTTSink) Publish(r poll.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, false, payload)
	token.Wait()
	return token.Error()
}
