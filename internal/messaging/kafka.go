// Package messaging publishes account snapshots to Kafka for downstream
// consumers of the dashboard's data.
package messaging

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"

	"github.com/bardlex/ducomon/pkg/circuit"
	"github.com/bardlex/ducomon/pkg/errors"
	"github.com/bardlex/ducomon/pkg/log"
	"github.com/bardlex/ducomon/pkg/retry"
)

const writeTimeout = 5 * time.Second

// KafkaClient publishes protobuf messages, lazily opening one writer per
// topic. Publishing goes through a breaker and a short retry.
type KafkaClient struct {
	brokers []string
	logger  *log.Logger
	breaker *circuit.Breaker
	backoff *retry.Config

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaClient returns a client for brokers. No connection is made until
// the first publish.
func NewKafkaClient(brokers []string, logger *log.Logger) *KafkaClient {
	logger = logger.WithComponent("kafka")

	cbConfig := circuit.ExportConfig()
	cbConfig.OnStateChange = func(name string, from, to circuit.State) {
		logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}

	return &KafkaClient{
		brokers: brokers,
		logger:  logger,
		breaker: circuit.New("kafka", cbConfig),
		backoff: retry.ExportConfig(),
		writers: make(map[string]*kafka.Writer),
	}
}

// writer returns the writer for topic. Messages are hashed on their key and
// written synchronously one at a time.
func (k *KafkaClient) writer(topic string) *kafka.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()

	if w, ok := k.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(k.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              1,
		WriteTimeout:           writeTimeout,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
	k.writers[topic] = w
	k.logger.Debug("opened writer", "topic", topic)
	return w
}

// PublishProto marshals msg and writes it to topic under key
func (k *KafkaClient) PublishProto(ctx context.Context, topic, key string, msg proto.Message, headers ...kafka.Header) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "protobuf_marshal", "failed to marshal protobuf message").
			WithContext("topic", topic)
	}

	record := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
		Time:    time.Now(),
	}

	return k.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, k.backoff, func() error {
			if err := k.writer(topic).WriteMessages(ctx, record); err != nil {
				return errors.Wrap(err, errors.ErrorTypeKafka, "publish_message", "failed to publish message to Kafka").
					WithContext("topic", topic).
					WithContext("key", key).
					WithContext("message_size", len(data))
			}
			k.logger.Debug("published message", "topic", topic, "key", key, "size", len(data))
			return nil
		})
	})
}

// Close flushes and closes every writer opened so far
func (k *KafkaClient) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	for topic, w := range k.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeKafka, "close_writer", "failed to close writer").
				WithContext("topic", topic))
		}
	}
	k.writers = make(map[string]*kafka.Writer)
	return stderrors.Join(errs...)
}
