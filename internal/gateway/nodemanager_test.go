package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeManagerRegisterUnregister(t *testing.T) {
	m := NewNodeManager()
	n := &Node{ID: 1, Capacity: 4}

	assert.False(t, m.IsOnline(1))
	m.Register(n)
	assert.True(t, m.IsOnline(1))
	assert.Same(t, n, m.Get(1))

	assert.True(t, m.Unregister(1))
	assert.False(t, m.IsOnline(1))
	assert.False(t, m.Unregister(1))
}

func TestNodeManagerPickNoNodes(t *testing.T) {
	m := NewNodeManager()
	_, err := m.Pick()
	assert.Error(t, err)
}

func TestNodeManagerPickLowestUtilization(t *testing.T) {
	m := NewNodeManager()
	n1 := &Node{ID: 1, Capacity: 2}
	n2 := &Node{ID: 2, Capacity: 2}
	m.Register(n1)
	m.Register(n2)

	n1.BeginCall() // n1 utilization 0.5, n2 utilization 0

	picked, err := m.Pick()
	require.NoError(t, err)
	assert.Equal(t, n2.ID, picked.ID)
}

func TestNodeManagerPickTiesBreakAscendingID(t *testing.T) {
	m := NewNodeManager()
	n2 := &Node{ID: 2, Capacity: 4}
	n1 := &Node{ID: 1, Capacity: 4}
	m.Register(n2)
	m.Register(n1)

	picked, err := m.Pick()
	require.NoError(t, err)
	assert.Equal(t, n1.ID, picked.ID)
}

func TestNodeManagerPickSkipsFullNodes(t *testing.T) {
	m := NewNodeManager()
	n1 := &Node{ID: 1, Capacity: 1}
	n2 := &Node{ID: 2, Capacity: 1}
	m.Register(n1)
	m.Register(n2)

	n1.BeginCall()
	assert.False(t, n1.HasCapacity())

	picked, err := m.Pick()
	require.NoError(t, err)
	assert.Equal(t, n2.ID, picked.ID)

	n2.BeginCall()
	_, err = m.Pick()
	assert.Error(t, err)

	n1.EndCall()
	picked, err = m.Pick()
	require.NoError(t, err)
	assert.Equal(t, n1.ID, picked.ID)
}
