package naming

import (
	"sort"
	"time"
)

// instanceSet 按 (host, port) 去重的实例集合
type instanceSet map[ServiceInstance]struct{}

func newInstanceSet(instances []ServiceInstance) instanceSet {
	set := make(instanceSet, len(instances))
	for _, inst := range instances {
		set[inst] = struct{}{}
	}
	return set
}

// sorted 按地址排序，便于日志和对外展示
func (s instanceSet) sorted() []ServiceInstance {
	out := make([]ServiceInstance, 0, len(s))
	for inst := range s {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Host != out[j].Host {
			return out[i].Host < out[j].Host
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// Diff 计算两次成员快照之间的变更：added = current - previous，removed = previous - current。
// 纯函数，返回切片内无顺序保证。
func Diff(previous, current []ServiceInstance) (added, removed []ServiceInstance) {
	return diffSets(newInstanceSet(previous), newInstanceSet(current))
}

func diffSets(previous, current instanceSet) (added, removed []ServiceInstance) {
	for inst := range current {
		if _, ok := previous[inst]; !ok {
			added = append(added, inst)
		}
	}
	for inst := range previous {
		if _, ok := current[inst]; !ok {
			removed = append(removed, inst)
		}
	}
	return added, removed
}

// membershipView 某个订阅最近一次成功读取的结果。构造后只读，整体替换。
type membershipView struct {
	index     uint64
	instances instanceSet
	updatedAt time.Time
}

func newMembershipView(index uint64, instances []ServiceInstance) *membershipView {
	return &membershipView{
		index:     index,
		instances: newInstanceSet(instances),
		updatedAt: time.Now(),
	}
}

// delta 相对于 prev 的变更，prev 为 nil 时视为空集合（首次快照全部作为新增）
func (v *membershipView) delta(prev *membershipView) (added, removed []ServiceInstance) {
	if prev == nil {
		return diffSets(nil, v.instances)
	}
	return diffSets(prev.instances, v.instances)
}
