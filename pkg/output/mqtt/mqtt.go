package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Zatrac/ADS1256-driver/pkg/config"
	"github.com/Zatrac/ADS1256-driver/pkg/logger"
	"github.com/Zatrac/ADS1256-driver/pkg/output"
	"github.com/Zatrac/ADS1256-driver/pkg/power"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "ads1256-power"
	DefaultStateTopic = "ads1256/power"
	disconnectQuiesce = 250
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
)

// sensor describes one Home Assistant entity derived from the state payload.
type sensor struct {
	suffix        string
	unit          string
	deviceClass   string
	stateClass    string
	valueTemplate string
}

var sensors = []sensor{
	{"power", "W", "power", "measurement", "{{ value_json.power }}"},
	{"energy", "kWh", "energy", "total_increasing", "{{ value_json.energy }}"},
}

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
}

// statePayload is published on the state topic for every reading.
type statePayload struct {
	Timestamp      string  `json:"timestamp"`
	Power          float64 `json:"power"`
	Energy         float64 `json:"energy"`
	PrimaryCurrent float64 `json:"current"`
	Samples        int     `json:"samples"`
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID).SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic}

	// Publish Home Assistant discovery payloads if requested
	if cfg.DiscoveryTopic != "" {
		for _, s := range sensors {
			topic := fmt.Sprintf("%s/%s/config", cfg.DiscoveryTopic, discoveryUniqueID(cfg, s))
			payload := discoveryPayload(cfg, s)
			if err := publishJSON(client, topic, true, payload); err != nil {
				logger.Error("mqtt discovery publish: %v", err)
			}
		}
	}

	return m, nil
}

// withDefaults fills in the server, topic and a unique client id. The
// discovery unique id is fixed before the client id gets its random suffix
// so Home Assistant entities survive a restart.
func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.DiscoveryUniqueID == "" {
		cfg.DiscoveryUniqueID = cfg.ClientID
		if cfg.DiscoveryUniqueID == "" {
			cfg.DiscoveryUniqueID = DefaultClientID
		}
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID + "-" + uuid.NewString()[:8]
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

func (m *MQTTOutput) Publish(r power.Reading) error {
	b, err := json.Marshal(newStatePayload(r))
	if err != nil {
		return err
	}
	token := m.client.Publish(m.stateTopic, 0, false, b)
	token.Wait()
	return token.Error()
}

func newStatePayload(r power.Reading) statePayload {
	return statePayload{
		Timestamp:      r.Timestamp.UTC().Format(time.RFC3339),
		Power:          r.Power,
		Energy:         r.Energy,
		PrimaryCurrent: r.PrimaryCurrent,
		Samples:        r.Samples,
	}
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesce)
	}
	return nil
}

// helper: build a human-friendly discovery name for an entity
func discoveryName(cfg config.MQTTConfig, s sensor) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = "ADS1256"
	}
	return fmt.Sprintf("%s %s", name, s.suffix)
}

// helper: build a unique id for an entity
func discoveryUniqueID(cfg config.MQTTConfig, s sensor) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	return fmt.Sprintf("%s_%s", uid, s.suffix)
}

// helper: discovery payload for one entity
func discoveryPayload(cfg config.MQTTConfig, s sensor) map[string]interface{} {
	return map[string]interface{}{
		keyName:                discoveryName(cfg, s),
		keyStateTopic:          cfg.StateTopic,
		keyUnitOfMeasurement:   s.unit,
		keyDeviceClass:         s.deviceClass,
		keyStateClass:          s.stateClass,
		keyValueTemplate:       s.valueTemplate,
		keyJSONAttributesTopic: cfg.StateTopic,
		keyUniqueID:            discoveryUniqueID(cfg, s),
	}
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
