package gateway

import (
	"strconv"
	"time"
)

// Broadcaster builds envelopes and fans them out to hub clients.
type Broadcaster struct {
	hub *Hub
	now func() time.Time
}

// NewBroadcaster creates a Broadcaster backed by hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, now: time.Now}
}

// Broadcast wraps data in an envelope, records it for replay and sends it
// to every client. Slow clients drop the frame.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := b.now().UTC()

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.seq++
	seq := b.hub.seq

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	b.hub.latest[channel] = latestEntry{Envelope: buf, TS: now, Seq: channelSeq}

	rb, exists := b.hub.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(b.hub.replaySize)
		b.hub.replayBufs[channel] = rb
	}
	rb.Push(channelSeq, buf)

	for client := range b.hub.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
	b.hub.mu.Unlock()
}

// buildEnvelope hand-crafts {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}.
// channel is always one of the package constants, so it needs no escaping.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
