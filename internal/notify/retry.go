package notify

import "time"

// RetryPolicy: экспоненциальная задержка с потолком.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Base: time.Second, Max: time.Minute}
}

// Backoff: задержка перед попыткой attempt (с 1). Чистая функция:
// base * 2^(attempt-1), не больше Max.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 2; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}
