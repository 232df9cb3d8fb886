package transport

import "sync/atomic"

type MetricsSnapshot struct {
	MessagesSent  int64
	MessagesRecv  int64
	MessagesQueue int64 // currently waiting for readiness
	Drained       int64 // delivered from the queue on readiness
	Dropped       int64 // discarded by boot failure or termination
}

type Metrics struct {
	messagesSent  atomic.Int64
	messagesRecv  atomic.Int64
	messagesQueue atomic.Int64
	drained       atomic.Int64
	dropped       atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordMessageSent(delta int) {
	m.messagesSent.Add(int64(delta))
}

func (m *Metrics) RecordMessageRecv(delta int) {
	m.messagesRecv.Add(int64(delta))
}

func (m *Metrics) RecordQueued(delta int) {
	m.messagesQueue.Add(int64(delta))
}

func (m *Metrics) RecordDrained(delta int) {
	m.drained.Add(int64(delta))
}

func (m *Metrics) RecordDropped(delta int) {
	m.dropped.Add(int64(delta))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesSent:  m.messagesSent.Load(),
		MessagesRecv:  m.messagesRecv.Load(),
		MessagesQueue: m.messagesQueue.Load(),
		Drained:       m.drained.Load(),
		Dropped:       m.dropped.Load(),
	}
}
