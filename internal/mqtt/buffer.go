package mqtt

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog queues messages published while the broker is unreachable.
// When full it evicts the oldest measurement first, so retained lifecycle
// events outlive the readings around them. Not safe for concurrent use.
type backlog struct {
	msgs    []bufferedMsg
	limit   int
	dropped int
}

func newBacklog(limit int) *backlog {
	if limit < 1 {
		limit = 1
	}
	return &backlog{limit: limit}
}

// add queues msg and reports whether an older message was evicted.
func (b *backlog) add(msg bufferedMsg) bool {
	b.msgs = append(b.msgs, msg)
	if len(b.msgs) <= b.limit {
		return false
	}

	victim := 0
	for i, m := range b.msgs {
		if !m.retained {
			victim = i
			break
		}
	}
	b.msgs = append(b.msgs[:victim], b.msgs[victim+1:]...)
	b.dropped++
	return true
}

// take returns the queued messages oldest first with the number evicted
// since the last take, and empties the backlog.
func (b *backlog) take() ([]bufferedMsg, int) {
	msgs, dropped := b.msgs, b.dropped
	b.msgs, b.dropped = nil, 0
	return msgs, dropped
}

func (b *backlog) len() int {
	return len(b.msgs)
}
