package core

import (
	"sync"
	"time"
)

const AVG_COUNT uint8 = 30

// MetricsState keeps a rolling average of merge durations together with
// the totals of merges that succeeded and failed.
type MetricsState struct {
	mutex           sync.Mutex
	MergeAVGCounter uint8
	MStimes         [AVG_COUNT]float64
	MSavg           float64
	Samples         uint8
	Succeeded       uint64
	Failed          uint64
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{
			MStimes: [AVG_COUNT]float64{0},
		}
	})
	return nil
}

// MetricsRecordMerge stores the duration of one merge and whether it succeeded.
func MetricsRecordMerge(elapsed time.Duration, succeeded bool) {
	if metricsState == nil {
		_ = MetricsInitialize()
	}
	metricsState.mutex.Lock()
	defer metricsState.mutex.Unlock()

	if succeeded {
		metricsState.Succeeded++
	} else {
		metricsState.Failed++
	}

	ms := float64(elapsed) / float64(time.Millisecond)
	metricsState.MStimes[metricsState.MergeAVGCounter] = ms
	metricsState.MergeAVGCounter++
	metricsState.MergeAVGCounter %= AVG_COUNT
	if metricsState.Samples < AVG_COUNT {
		metricsState.Samples++
	}

	total := float64(0)
	for i := uint8(0); i < metricsState.Samples; i++ {
		total += metricsState.MStimes[i]
	}
	metricsState.MSavg = total / float64(metricsState.Samples)
}

// MetricsMergeTime returns the average merge time in milliseconds over the
// last AVG_COUNT merges.
func MetricsMergeTime() float64 {
	if metricsState == nil {
		return 0
	}
	metricsState.mutex.Lock()
	defer metricsState.mutex.Unlock()
	return metricsState.MSavg
}

// MetricsMergeCounts returns how many merges succeeded and failed.
func MetricsMergeCounts() (uint64, uint64) {
	if metricsState == nil {
		return 0, 0
	}
	metricsState.mutex.Lock()
	defer metricsState.mutex.Unlock()
	return metricsState.Succeeded, metricsState.Failed
}

// MetricsReset clears all recorded samples.
func MetricsReset() {
	if metricsState == nil {
		return
	}
	metricsState.mutex.Lock()
	defer metricsState.mutex.Unlock()
	metricsState.MergeAVGCounter = 0
	metricsState.MStimes = [AVG_COUNT]float64{0}
	metricsState.MSavg = 0
	metricsState.Samples = 0
	metricsState.Succeeded = 0
	metricsState.Failed = 0
}
