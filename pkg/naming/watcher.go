package naming

import (
	"bytes"
	"context"
	"maps"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code-sigs/go-naming/pkg/logger"
	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
	"github.com/code-sigs/go-naming/pkg/trace"
)

// subscription 一个被监听的服务：一个监听循环、一份成员视图、若干监听者。
//
// 监听循环状态：STARTING（ListInstances 取初始快照）-> POLLING（BlockingQuery）<-> BACKOFF，
// 只有 stop 能让循环退出。所有回调都在循环所在的 goroutine 上串行执行。
type subscription struct {
	info     SubscribeInfo
	registry registry.Registry
	opts     *Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	view   atomic.Pointer[membershipView]
	loopID atomic.Int64 // 监听循环所在 goroutine，用于识别回调里的重入调用

	mu        sync.Mutex
	listeners []NotifyListener // 按注册顺序回调
	pending   []NotifyListener // 视图就绪后才加入的监听者，等待补发当前快照
	interrupt context.CancelFunc
	current   NotifyListener // 正在回调的监听者
	callback  chan struct{}  // 当前回调结束时关闭
}

func newSubscription(parent context.Context, info SubscribeInfo, reg registry.Registry, opts *Options) *subscription {
	ctx, cancel := context.WithCancel(trace.WithNewTraceID(parent))
	return &subscription{
		info:     info,
		registry: reg,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (s *subscription) start() {
	go s.run()
}

// attach 加入监听者，已存在时返回 false
func (s *subscription) attach(l NotifyListener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.listeners, l) || slices.Contains(s.pending, l) {
		return false
	}
	if s.view.Load() == nil {
		// 还没拿到首个快照，STARTING 完成后会以新增的形式收到全量
		s.listeners = append(s.listeners, l)
		return true
	}
	s.pending = append(s.pending, l)
	if s.interrupt != nil {
		s.interrupt()
	}
	return true
}

// detach 移除监听者，返回是否存在以及剩余监听者数量
func (s *subscription) detach(l NotifyListener) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	if i := slices.Index(s.listeners, l); i >= 0 {
		s.listeners = slices.Delete(s.listeners, i, i+1)
		found = true
	} else if i := slices.Index(s.pending, l); i >= 0 {
		s.pending = slices.Delete(s.pending, i, i+1)
		found = true
	}
	return found, len(s.listeners) + len(s.pending)
}

// requestStop 取消循环，返回调用方是否需要等待循环退出。
// 在回调里（监听循环自身的 goroutine 上）调用时返回 false，之后不会再开始新的回调。
func (s *subscription) requestStop() bool {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	return !s.onLoop()
}

// onLoop 当前 goroutine 是否为监听循环
func (s *subscription) onLoop() bool {
	id := s.loopID.Load()
	return id != 0 && id == goid()
}

// waitListener 等待 l 正在进行的回调结束；在回调里调用时直接返回
func (s *subscription) waitListener(l NotifyListener) {
	if s.onLoop() {
		return
	}
	s.mu.Lock()
	if s.current != l || s.callback == nil {
		s.mu.Unlock()
		return
	}
	done := s.callback
	s.mu.Unlock()
	<-done
}

// goid 解析 runtime.Stack 首行 "goroutine N [...]"
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(bytes.TrimPrefix(buf[:n], []byte("goroutine ")))
	if len(fields) == 0 {
		return 0
	}
	id, _ := strconv.ParseInt(string(fields[0]), 10, 64)
	return id
}

func (s *subscription) wait() {
	<-s.done
}

func (s *subscription) status() SubscriptionStatus {
	s.mu.Lock()
	n := len(s.listeners) + len(s.pending)
	s.mu.Unlock()
	st := SubscriptionStatus{
		InterfaceName: s.info.InterfaceName,
		Listeners:     n,
		Instances:     []ServiceInstance{},
	}
	if v := s.view.Load(); v != nil {
		st.Seeded = true
		st.Index = v.index
		st.Instances = v.instances.sorted()
		st.UpdatedAt = v.updatedAt
	}
	return st
}

func (s *subscription) run() {
	defer close(s.done)
	s.loopID.Store(goid())
	name := s.info.InterfaceName
	logger.Infow(s.ctx, "watch loop started", "service", name)
	defer logger.Infow(s.ctx, "watch loop stopped", "service", name)

	bo := newBackoff(s.opts.BackoffInitial, s.opts.BackoffMax, s.opts.BackoffMultiplier)

	// STARTING
	for {
		instances, index, err := s.registry.ListInstances(s.ctx, name)
		if err == nil {
			s.apply(index, toInstances(instances))
			break
		}
		if !s.sleepBackoff(bo, err) {
			return
		}
	}
	bo.Reset()

	// POLLING
	for s.ctx.Err() == nil {
		s.primePending()
		qctx, ok := s.beginQuery()
		if !ok {
			continue
		}
		instances, index, err := s.registry.BlockingQuery(qctx, name, s.view.Load().index, s.opts.WaitTime)
		interrupted := s.endQuery(qctx)
		if err != nil {
			if interrupted {
				continue
			}
			if !s.sleepBackoff(bo, err) {
				return
			}
			continue
		}
		bo.Reset()
		s.apply(index, toInstances(instances))
	}
}

// beginQuery 为本轮长轮询建立可被 attach 打断的 ctx；有待补发的监听者时返回 false
func (s *subscription) beginQuery() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > 0 {
		return nil, false
	}
	qctx, cancel := context.WithCancel(s.ctx)
	s.interrupt = cancel
	return qctx, true
}

// endQuery 结束本轮长轮询，返回是否被新监听者打断（而不是 stop）
func (s *subscription) endQuery(qctx context.Context) bool {
	s.mu.Lock()
	cancel := s.interrupt
	s.interrupt = nil
	s.mu.Unlock()
	interrupted := qctx.Err() != nil && s.ctx.Err() == nil
	cancel()
	return interrupted
}

// sleepBackoff 进入 BACKOFF，循环被停止时返回 false
func (s *subscription) sleepBackoff(bo *backoff, err error) bool {
	if s.ctx.Err() != nil {
		return false
	}
	d := bo.Next()
	logger.Warnw(s.ctx, "registry query failed, backing off",
		"service", s.info.InterfaceName, "backoff", d, "error", err)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// apply 先替换视图再回调，回调里重入读取看到的是新视图
func (s *subscription) apply(index uint64, instances []ServiceInstance) {
	next := newMembershipView(index, instances)

	s.mu.Lock()
	prev := s.view.Load()
	if prev != nil {
		if index < prev.index {
			// 索引回退（注册中心重建或切主），下一轮从 0 开始全量读
			logger.Warnw(s.ctx, "registry index went backwards, resetting",
				"service", s.info.InterfaceName, "prev", prev.index, "index", index)
			next.index = 0
		} else if index == prev.index && maps.Equal(prev.instances, next.instances) {
			s.mu.Unlock()
			return
		}
	}
	s.view.Store(next)
	targets := slices.Clone(s.listeners)
	s.mu.Unlock()

	added, removed := next.delta(prev)
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	logger.Debugw(s.ctx, "membership changed", "service", s.info.InterfaceName,
		"index", next.index, "added", added, "removed", removed)
	for _, l := range targets {
		if !s.notify(l, added, removed) {
			return
		}
	}
}

// primePending 给后加入的监听者补发当前全量快照
func (s *subscription) primePending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.listeners = append(s.listeners, pending...)
	view := s.view.Load()
	s.mu.Unlock()

	if len(pending) == 0 || view == nil || len(view.instances) == 0 {
		return
	}
	snapshot := view.instances.sorted()
	for _, l := range pending {
		if !s.notify(l, snapshot, nil) {
			return
		}
	}
}

// notify 回调单个监听者，循环已停止时返回 false。
// 已被移除的监听者直接跳过；panic 被隔离，不影响后续监听者。
func (s *subscription) notify(l NotifyListener, added, removed []ServiceInstance) (ok bool) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if !slices.Contains(s.listeners, l) {
		s.mu.Unlock()
		return true
	}
	done := make(chan struct{})
	s.current, s.callback = l, done
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorw(s.ctx, "notify listener panicked", "service", s.info.InterfaceName, "panic", r)
			ok = true
		}
		s.mu.Lock()
		s.current, s.callback = nil, nil
		s.mu.Unlock()
		close(done)
	}()
	l.Notify(slices.Clone(added), slices.Clone(removed))
	return true
}
