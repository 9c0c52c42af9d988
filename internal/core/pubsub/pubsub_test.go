package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	s, err := Subject("INVENTORY", "MO:created")
	require.NoError(t, err)
	assert.Equal(t, "INVENTORY.MO.created", s)

	s, err = Subject("", "TPRM:deleted")
	require.NoError(t, err)
	assert.Equal(t, "TPRM.deleted", s)

	for _, key := range []string{"", "MO", ":created", "MO:", "MO:a.b", "MO:*", "M O:x"} {
		_, err := Subject("INVENTORY", key)
		assert.Error(t, err, key)
	}
}

func TestKeyFromSubject(t *testing.T) {
	assert.Equal(t, "PRM:updated", KeyFromSubject("INVENTORY.PRM.updated"))
	assert.Equal(t, "PRM:updated", KeyFromSubject("PRM.updated"))
	assert.Equal(t, "", KeyFromSubject("PRM"))
	assert.Equal(t, "MO", EntityKind("MO:deleted"))
	assert.Equal(t, "", EntityKind(""))
}

func TestOptions(t *testing.T) {
	assert.Equal(t, "S", PublisherOptions{StreamName: "S"}.Prefix())
	assert.Equal(t, "P", PublisherOptions{StreamName: "S", SubjectPrefix: "P"}.Prefix())

	assert.Equal(t, ">", ConsumerOptions{}.Filter())
	assert.Equal(t, "S.>", ConsumerOptions{StreamName: "S"}.Filter())
	assert.Equal(t, "S.MO.*", ConsumerOptions{StreamName: "S", FilterSubject: "S.MO.*"}.Filter())

	d := DefaultConsumerOptions()
	assert.Equal(t, 100, d.ChannelBufSize)
	assert.Equal(t, 30*time.Second, d.AckWait)
}
