package nats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNats_Connect(t *testing.T) {
	connect := NewTestContainer(t)

	nc1, disconnect1, err := connect()
	require.NoError(t, err)
	require.NotNil(t, nc1)
	require.Equal(t, "CONNECTED", nc1.Status().String())

	nc2, disconnect2, err := connect()
	require.NoError(t, err)
	require.NotNil(t, nc2)
	require.Equal(t, "CONNECTED", nc2.Status().String())

	disconnect1()
	disconnect2()
	require.Equal(t, "CLOSED", nc1.Status().String())
}

func TestNats_ReuseConnection(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))

	nc1, disconnect1, err := connect()
	require.NoError(t, err)
	nc2, disconnect2, err := connect()
	require.NoError(t, err)

	// both leases share one underlying connection
	require.Same(t, nc1, nc2)

	disconnect1()
	require.Equal(t, "CONNECTED", nc2.Status().String())

	disconnect2()
	require.Equal(t, "CLOSED", nc2.Status().String())
}
