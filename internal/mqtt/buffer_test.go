package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(n byte) bufferedMsg {
	return bufferedMsg{topic: Topic, payload: []byte{n}}
}

func lifecycle(event string) bufferedMsg {
	return bufferedMsg{topic: TopicSystem, payload: []byte(event), qos: 1, retained: true}
}

func payloads(msgs []bufferedMsg) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.payload))
	}
	return out
}

func TestBacklogEmptyTake(t *testing.T) {
	b := newBacklog(4)
	msgs, dropped := b.take()
	assert.Empty(t, msgs)
	assert.Zero(t, dropped)
}

func TestBacklogKeepsOrder(t *testing.T) {
	b := newBacklog(4)
	for i := byte(0); i < 3; i++ {
		assert.False(t, b.add(reading(i)))
	}
	assert.Equal(t, 3, b.len())

	msgs, dropped := b.take()
	assert.Equal(t, []string{"\x00", "\x01", "\x02"}, payloads(msgs))
	assert.Zero(t, dropped)
	assert.Equal(t, 0, b.len())
}

func TestBacklogEvictsOldestReading(t *testing.T) {
	b := newBacklog(3)
	b.add(lifecycle("STARTUP"))
	b.add(reading(1))
	b.add(reading(2))

	assert.True(t, b.add(reading(3)))
	assert.True(t, b.add(reading(4)))

	msgs, dropped := b.take()
	assert.Equal(t, []string{"STARTUP", "\x03", "\x04"}, payloads(msgs))
	assert.Equal(t, 2, dropped)
}

func TestBacklogAllRetainedDropsOldest(t *testing.T) {
	b := newBacklog(2)
	b.add(lifecycle("STARTUP"))
	b.add(lifecycle("HEARTBEAT"))
	b.add(lifecycle("SHUTDOWN"))

	msgs, dropped := b.take()
	assert.Equal(t, []string{"HEARTBEAT", "SHUTDOWN"}, payloads(msgs))
	assert.Equal(t, 1, dropped)
}

func TestBacklogCountsResetAfterTake(t *testing.T) {
	b := newBacklog(1)
	b.add(reading(1))
	b.add(reading(2))
	_, dropped := b.take()
	require.Equal(t, 1, dropped)

	b.add(reading(3))
	msgs, dropped := b.take()
	assert.Equal(t, []string{"\x03"}, payloads(msgs))
	assert.Zero(t, dropped)
}

func TestBacklogMinimumLimit(t *testing.T) {
	b := newBacklog(0)
	b.add(reading(1))
	assert.True(t, b.add(reading(2)))
	assert.Equal(t, 1, b.len())
}

func TestBacklogPreservesFields(t *testing.T) {
	b := newBacklog(2)
	b.add(lifecycle("STARTUP"))

	msgs, _ := b.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicSystem, msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.True(t, msgs[0].retained)
}
