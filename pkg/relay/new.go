package relay

import "fmt"

// New 按驱动类型创建发布器，返回值已带链路追踪
func New(cfg *Config) (Publisher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		pub Publisher
		err error
	)
	switch cfg.Driver {
	case DriverNone, "":
		return NewNoop(), nil
	case DriverRedis:
		pub, err = newRedisPublisher(cfg.Redis)
	case DriverKafka:
		pub, err = newKafkaPublisher(cfg.Kafka)
	case DriverAMQP:
		pub, err = newAMQPPublisher(cfg.AMQP)
	default:
		return nil, fmt.Errorf("%w: unsupported driver type", ErrInvalidConfig)
	}
	if err != nil {
		return nil, err
	}
	return NewTracing(pub, cfg.Driver), nil
}
