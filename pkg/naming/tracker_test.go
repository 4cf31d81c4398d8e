package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func inst(port int) ServiceInstance {
	return NewServiceInstance("127.0.0.1", port)
}

func TestDiff(t *testing.T) {
	cases := []struct {
		name           string
		prev, curr     []ServiceInstance
		added, removed []ServiceInstance
	}{
		{"both empty", nil, nil, nil, nil},
		{"initial snapshot", nil, []ServiceInstance{inst(8015), inst(8016)}, []ServiceInstance{inst(8015), inst(8016)}, nil},
		{"remove one", []ServiceInstance{inst(8015), inst(8016)}, []ServiceInstance{inst(8016)}, nil, []ServiceInstance{inst(8015)}},
		{"add and remove", []ServiceInstance{inst(1), inst(2)}, []ServiceInstance{inst(2), inst(3)}, []ServiceInstance{inst(3)}, []ServiceInstance{inst(1)}},
		{"unchanged", []ServiceInstance{inst(1), inst(2)}, []ServiceInstance{inst(2), inst(1)}, nil, nil},
		{"duplicates collapse", []ServiceInstance{inst(1), inst(1)}, []ServiceInstance{inst(1)}, nil, nil},
		{"all removed", []ServiceInstance{inst(1)}, nil, nil, []ServiceInstance{inst(1)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			added, removed := Diff(c.prev, c.curr)
			assert.ElementsMatch(t, c.added, added)
			assert.ElementsMatch(t, c.removed, removed)
		})
	}
}

func TestDiffIdentityIsHostAndPort(t *testing.T) {
	a := []ServiceInstance{NewServiceInstance("10.0.0.1", 80)}
	b := []ServiceInstance{NewServiceInstance("10.0.0.2", 80)}
	added, removed := Diff(a, b)
	assert.Equal(t, b, added)
	assert.Equal(t, a, removed)
}

func TestMembershipViewDelta(t *testing.T) {
	first := newMembershipView(5, []ServiceInstance{inst(8015), inst(8016)})
	added, removed := first.delta(nil)
	assert.ElementsMatch(t, []ServiceInstance{inst(8015), inst(8016)}, added)
	assert.Empty(t, removed)

	second := newMembershipView(6, []ServiceInstance{inst(8016)})
	added, removed = second.delta(first)
	assert.Empty(t, added)
	assert.Equal(t, []ServiceInstance{inst(8015)}, removed)

	assert.Equal(t, []ServiceInstance{inst(8015), inst(8016)}, first.instances.sorted())
}
