package systems

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-merge/engine/core"
)

/** Definition for jobs. The returned value is handed to OnComplete. */
type JobStart func(params interface{}) (interface{}, error)

/** Definition for completion of a job. */
type JobOnComplete func(result interface{})

/** Definition for failure of a job. */
type JobOnFailure func(err error)

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	/** @brief Identifies the job in logs. Assigned on submit when empty. */
	ID uuid.UUID
	/** @brief A human readable name used in logs. */
	Name string
	/** @brief Invoked when the job starts. Required. */
	OnStart JobStart
	/** @brief Invoked with the result when OnStart succeeds. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked with the error when OnStart fails. Optional. */
	OnFailure JobOnFailure
	/** @brief Invoked after OnComplete or OnFailure. Optional. */
	OnCompletionCallback func()
	/** @brief Data passed to OnStart. */
	InputParams interface{}
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mutex    sync.RWMutex
	shutdown bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}

	js.start()
	core.LogDebug("job system started with %d workers", numWorkers)

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	if job.OnCompletionCallback != nil {
		defer job.OnCompletionCallback()
	}
	result, err := js.execute(job)
	if err != nil {
		core.LogError("job '%s' (%s) failed: %s", job.Name, job.ID, err.Error())
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete(result)
	}
}

// execute runs the job entry point, turning a panic into an error so one
// bad job does not take a worker down.
func (js *JobSystem) execute(job JobTask) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	if job.OnStart == nil {
		return nil, fmt.Errorf("job has no entry point")
	}
	return job.OnStart(job.InputParams)
}

/**
 * @brief Shuts the job system down. Queued jobs are drained first.
 */
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if js.shutdown {
		js.mutex.Unlock()
		return nil
	}
	js.shutdown = true
	close(js.jobQueue)
	js.mutex.Unlock()

	js.wg.Wait()
	return nil
}

// NumWorkers returns the size of the worker pool.
func (js *JobSystem) NumWorkers() int {
	return js.numWorkers
}

// AddWorkNonBlocking queues the job from a new goroutine and returns immediately.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) {
	go func() {
		if err := js.Submit(jt); err != nil {
			core.LogError(err.Error())
		}
	}()
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.ID == uuid.Nil {
		jt.ID = uuid.New()
	}
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.shutdown {
		return fmt.Errorf("job '%s': %w", jt.Name, core.ErrSystemShutdown)
	}
	js.jobQueue <- jt
	return nil
}
