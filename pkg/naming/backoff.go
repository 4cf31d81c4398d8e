package naming

import "time"

// backoff 指数退避，间隔不超过 max，成功一次后 Reset 回到初始值
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	current    time.Duration
}

func newBackoff(initial, max time.Duration, multiplier float64) *backoff {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max < initial {
		max = initial
	}
	if multiplier < 1 {
		multiplier = 2
	}
	return &backoff{initial: initial, max: max, multiplier: multiplier}
}

// Next 返回本次应等待的间隔
func (b *backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.initial
		return b.current
	}
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max || next <= 0 {
		next = b.max
	}
	b.current = next
	return next
}

func (b *backoff) Reset() {
	b.current = 0
}
