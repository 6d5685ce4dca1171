package main

import (
	"github.com/akriventsev/potter-commerce/framework/adapters/messagebus"
	"github.com/akriventsev/potter-commerce/framework/config"
)

// busSettings переводит секцию bus в конфигурацию адаптера для messagebus.Factory
func busSettings(cfg config.BusConfig, serviceName string) (string, interface{}) {
	switch cfg.Type {
	case "nats":
		nc := messagebus.DefaultNATSConfig()
		nc.URL = cfg.NATS.URL
		nc.Name = serviceName
		nc.QueueGroup = cfg.NATS.QueueGroup
		nc.MaxReconnects = cfg.NATS.MaxReconnects
		nc.ReconnectWait = cfg.NATS.ReconnectWait
		nc.Token = cfg.NATS.Token
		nc.Username = cfg.NATS.Username
		nc.Password = cfg.NATS.Password
		return cfg.Type, nc

	case "kafka":
		kc := messagebus.DefaultKafkaConfig()
		kc.Brokers = cfg.Kafka.Brokers
		kc.GroupID = cfg.Kafka.GroupID
		kc.Compression = cfg.Kafka.Compression
		kc.BatchSize = cfg.Kafka.BatchSize
		kc.FlushInterval = cfg.Kafka.FlushTimeout
		kc.ProducerConfig.RequiredAcks = cfg.Kafka.RequiredAcks
		return cfg.Type, kc

	case "redis":
		rc := messagebus.DefaultRedisConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.PoolSize = cfg.Redis.PoolSize
		rc.StreamMaxLen = cfg.Redis.StreamMaxLen
		rc.StreamPrefix = cfg.Redis.StreamPrefix
		rc.ConsumerGroup = cfg.Redis.ConsumerGroup
		rc.BlockTimeout = cfg.Redis.BlockTimeout
		return cfg.Type, rc

	case "rabbitmq":
		ac := messagebus.DefaultRabbitMQConfig()
		ac.URL = cfg.RabbitMQ.URL
		ac.Exchange = cfg.RabbitMQ.Exchange
		ac.QueuePrefix = cfg.RabbitMQ.QueuePrefix
		ac.Prefetch = cfg.RabbitMQ.Prefetch
		return cfg.Type, ac

	default:
		return "inmemory", messagebus.InMemoryConfig{EnableOrdering: cfg.InMemory.EnableOrdering}
	}
}
