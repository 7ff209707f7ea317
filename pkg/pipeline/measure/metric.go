package measure

import (
	"sync"
	"time"
)

type DefaultMetric struct {
	mu           *sync.Mutex
	wait         time.Duration
	compute      time.Duration
	err          error
	dependencies []string
}

func (mt *DefaultMetric) SetWaitDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.wait = round(elapsed)
}

func (mt *DefaultMetric) WaitDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.wait
}

func (mt *DefaultMetric) SetComputeDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.compute = round(elapsed)
}

func (mt *DefaultMetric) ComputeDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.compute
}

func (mt *DefaultMetric) SetErr(err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.err = err
}

func (mt *DefaultMetric) Err() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.err
}

func (mt *DefaultMetric) AddDependency(name string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.dependencies = append(mt.dependencies, name)
}

func (mt *DefaultMetric) Dependencies() []string {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	out := make([]string, len(mt.dependencies))
	copy(out, mt.dependencies)

	return out
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		d = d.Round(time.Minute)
	case d > time.Second:
		d = d.Round(time.Millisecond)
	case d > time.Millisecond:
		d = d.Round(time.Microsecond)
	}

	return d
}
