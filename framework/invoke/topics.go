package invoke

import (
	"fmt"
	"strings"
)

// TopicResolver определяет топики запросов по имени операции
type TopicResolver interface {
	// RequestTopic возвращает топик запроса для операции
	RequestTopic(operation string) string
}

// PrefixTopicResolver формирует топик как {prefix}.{operation}
type PrefixTopicResolver struct {
	prefix string
}

// NewPrefixTopicResolver создает новый PrefixTopicResolver
func NewPrefixTopicResolver(prefix string) *PrefixTopicResolver {
	return &PrefixTopicResolver{prefix: strings.TrimSuffix(prefix, ".")}
}

// RequestTopic формирует subject как {prefix}.{operation}
func (r *PrefixTopicResolver) RequestTopic(operation string) string {
	if r.prefix == "" {
		return operation
	}
	return fmt.Sprintf("%s.%s", r.prefix, operation)
}

// StaticTopicResolver явный маппинг операций на топики с fallback
type StaticTopicResolver struct {
	topics   map[string]string
	fallback TopicResolver
}

// NewStaticTopicResolver создает новый StaticTopicResolver.
// fallback может быть nil, тогда для неизвестной операции возвращается ее имя.
func NewStaticTopicResolver(topics map[string]string, fallback TopicResolver) *StaticTopicResolver {
	return &StaticTopicResolver{
		topics:   topics,
		fallback: fallback,
	}
}

// RequestTopic возвращает topic из маппинга
func (r *StaticTopicResolver) RequestTopic(operation string) string {
	if topic, ok := r.topics[operation]; ok && topic != "" {
		return topic
	}
	if r.fallback != nil {
		return r.fallback.RequestTopic(operation)
	}
	return operation
}

// InstanceReplyTopic формирует топик ответов конкретного инстанса: {prefix}.{service}.{instance}
func InstanceReplyTopic(prefix, service, instance string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{prefix, service, instance} {
		if p = strings.Trim(p, "."); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}
