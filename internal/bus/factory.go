package bus

import (
	"fmt"

	"github.com/nivesh/finassist/internal/config"
)

// New creates a bus implementation based on configuration. When an audit
// path is configured, the returned bus mirrors published events to disk.
func New(cfg config.BusConfig) (Bus, error) {
	var b Bus
	switch cfg.Type {
	case "", "memory":
		b = NewMemoryBus()
	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka bus requires at least one broker")
		}
		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: "finassist",
		})
		if err != nil {
			return nil, err
		}
		b = kb
	default:
		return nil, fmt.Errorf("unknown bus type: %s", cfg.Type)
	}

	if cfg.AuditPath != "" {
		log, err := NewAuditLog(cfg.AuditPath)
		if err != nil {
			b.Close()
			return nil, err
		}
		b = NewAuditedBus(b, log)
	}
	return b, nil
}
