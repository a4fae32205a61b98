package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskCompletesAfterAllAcks(t *testing.T) {
	tm := Init()
	tm.AddTask("m1", []byte("p"), []string{"b", "c"})

	assert.False(t, tm.Ack("m1", "b"))
	assert.Equal(t, []Task{{Id: "m1", Payload: []byte("p"), Waiting: []string{"c"}}}, tm.Outstanding())

	assert.True(t, tm.Ack("m1", "c"))
	assert.Empty(t, tm.Outstanding())

	started, complete := tm.Stats()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, complete)
}

func TestTaskDuplicateAndUnknownAcks(t *testing.T) {
	tm := Init()
	tm.AddTask("m1", nil, []string{"b", "c"})

	assert.False(t, tm.Ack("m1", "b"))
	assert.False(t, tm.Ack("m1", "b"))
	assert.False(t, tm.Ack("m2", "b"))
	assert.Len(t, tm.Outstanding(), 1)
}

func TestTaskWithoutPeers(t *testing.T) {
	tm := Init()
	tm.AddTask("solo", nil, nil)

	assert.Empty(t, tm.Outstanding())
	_, complete := tm.Stats()
	assert.Equal(t, 1, complete)
}
