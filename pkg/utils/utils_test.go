package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVirtual(t *testing.T) {
	assert.True(t, isVirtual("docker0"))
	assert.True(t, isVirtual("Veth12ab"))
	assert.True(t, isVirtual("lo"))
	assert.False(t, isVirtual("eth0"))
	assert.False(t, isVirtual("en0"))
}

func TestResolveHost(t *testing.T) {
	host, err := ResolveHost("10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", host)
}

func TestGenerateUUID(t *testing.T) {
	id := GenerateUUID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, GenerateUUID())
}
