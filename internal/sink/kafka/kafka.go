// Package kafka publishes decoded packets to a Kafka topic.
// Each packet becomes one message: the JSON packet view as value, the
// flow endpoints as key and the packet labels as headers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/pktt/internal/config"
	"firestige.xyz/pktt/internal/core"
	"firestige.xyz/pktt/internal/log"
	"firestige.xyz/pktt/internal/metrics"
	"firestige.xyz/pktt/internal/output"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink sends packets to Kafka.
type Sink struct {
	cfg    config.KafkaConfig
	writer messageWriter
	log    log.Logger

	reported atomic.Uint64
	failed   atomic.Uint64
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger; the process logger is used otherwise.
func WithLogger(l log.Logger) Option {
	return func(s *Sink) { s.log = l }
}

// New creates a sink writing to cfg.Topic. No connection is made until
// the first packet is reported.
func New(cfg config.KafkaConfig, opts ...Option) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka sink requires brokers", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: kafka sink requires a topic", core.ErrConfigInvalid)
	}
	codec, err := compression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	s := &Sink{cfg: cfg, log: log.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{}, // one flow stays on one partition
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			MaxAttempts:  cfg.MaxAttempts,
			Compression:  codec,
		}
	}

	s.log.WithFields(map[string]interface{}{
		"brokers":     cfg.Brokers,
		"topic":       cfg.Topic,
		"batch_size":  cfg.BatchSize,
		"compression": cfg.Compression,
	}).Info("kafka sink created")
	return s, nil
}

func compression(name string) (kafka.Compression, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("%w: invalid kafka compression %q", core.ErrConfigInvalid, name)
	}
}

// Report sends one packet.
func (s *Sink) Report(ctx context.Context, pkt *core.Packet) error {
	msg, err := Message(pkt)
	if err != nil {
		s.failed.Add(1)
		metrics.SinkMessagesTotal.WithLabelValues("kafka", "error").Inc()
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.failed.Add(1)
		metrics.SinkMessagesTotal.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("kafka write of packet %d failed: %w", pkt.Index, err)
	}
	s.reported.Add(1)
	metrics.SinkMessagesTotal.WithLabelValues("kafka", "ok").Inc()
	return nil
}

// Stats returns how many packets were sent and how many failed.
func (s *Sink) Stats() (reported, failed uint64) {
	return s.reported.Load(), s.failed.Load()
}

// Close flushes pending messages and closes the writer.
func (s *Sink) Close() error {
	err := s.writer.Close()
	if err != nil {
		s.log.WithError(err).Error("error closing kafka writer")
	}
	s.log.WithFields(map[string]interface{}{
		"topic":    s.cfg.Topic,
		"reported": s.reported.Load(),
		"failed":   s.failed.Load(),
	}).Info("kafka sink closed")
	return err
}

// Message builds the Kafka message for pkt.
func Message(pkt *core.Packet) (kafka.Message, error) {
	view := output.NewPacketView(pkt)
	value, err := json.Marshal(view)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serialize packet %d failed: %w", pkt.Index, err)
	}

	msg := kafka.Message{
		Key:   []byte(flowKey(view.Labels)),
		Value: value,
		Time:  pkt.Timestamp,
	}

	keys := make([]string, 0, len(view.Labels))
	for k := range view.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(view.Labels[k])})
	}
	return msg, nil
}

// flowKey orders the two endpoints so a call and its reply share a key.
func flowKey(labels map[string]string) string {
	a := endpoint(labels[core.LabelIPSrc], labels[core.LabelSrcPort])
	b := endpoint(labels[core.LabelIPDst], labels[core.LabelDstPort])
	if a == "" && b == "" {
		return ""
	}
	if b < a {
		a, b = b, a
	}
	return labels[core.LabelTransportProto] + ":" + a + "-" + b
}

func endpoint(addr, port string) string {
	if port == "" {
		return addr
	}
	return addr + ":" + port
}
