package ssoBroker

import (
	"io"

	"github.com/MrEthical07/ssoBroker/internal/audit"
	"github.com/go-logr/logr"
)

// AuditEvent is one audited broker outcome. It never carries a bearer token
// or a secret.
type AuditEvent = audit.Event

// AuditSink receives audit events from the broker's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per event and line.
type JSONWriterSink = audit.JSONWriterSink

// LogSink writes audit events through a logr.Logger.
type LogSink = audit.LogSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewLogSink(logger logr.Logger) *LogSink {
	return audit.NewLogSink(logger)
}
