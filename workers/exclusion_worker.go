package workers

import (
	"fmt"
	"log"
	"sync"

	"github.com/camden-git/catalogmirror/exclusion"
	"github.com/camden-git/catalogmirror/models"
)

// Job scopes
const (
	ScopeAllUsers = "all"
	ScopeOneUser  = "user"
)

type ExclusionJob struct {
	Scope      string
	UserID     uint              // set when Scope is ScopeOneUser
	EntityType models.EntityType // optional, empty means every type
	Reason     string
}

// ExclusionProcessor runs exclusion recomputes off the request path. Jobs
// for the same scope are deduped while pending so a burst of sync events
// collapses into one recompute.
type ExclusionProcessor struct {
	JobQueue chan ExclusionJob
	Computer *exclusion.Computer
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]bool
	Mutex    sync.Mutex
}

func NewExclusionProcessor(computer *exclusion.Computer, queueSize, numWorkers int) *ExclusionProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &ExclusionProcessor{
		JobQueue: make(chan ExclusionJob, queueSize),
		Computer: computer,
		StopChan: make(chan struct{}),
		Pending:  make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d exclusion worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func pendingKey(job ExclusionJob) string {
	if job.Scope == ScopeAllUsers {
		return ScopeAllUsers
	}
	return fmt.Sprintf("%s:%d:%s", job.Scope, job.UserID, job.EntityType)
}

func (ep *ExclusionProcessor) worker(id int) {
	defer ep.Wg.Done()

	log.Printf("Exclusion worker %d started", id)
	for {
		select {
		case job, ok := <-ep.JobQueue:
			if !ok {
				log.Printf("Exclusion worker %d stopping: Job queue closed", id)
				return
			}

			key := pendingKey(job)
			log.Printf("Exclusion worker %d: Received job scope '%s' (%s)", id, job.Scope, job.Reason)

			var err error
			switch {
			case job.Scope == ScopeAllUsers:
				err = ep.Computer.RecomputeAll()
			case job.EntityType != "":
				err = ep.Computer.RecomputeUser(job.UserID, job.EntityType)
			default:
				err = ep.Computer.RecomputeUserAll(job.UserID)
			}
			if err != nil {
				log.Printf("Exclusion worker %d: ERROR recomputing (%s): %v", id, key, err)
			}

			ep.Mutex.Lock()
			delete(ep.Pending, key)
			ep.Mutex.Unlock()

		case <-ep.StopChan:
			log.Printf("Exclusion worker %d stopping: Stop signal received", id)
			return
		}
	}
}

// QueueJob queues a recompute if an identical one is not already pending
func (ep *ExclusionProcessor) QueueJob(job ExclusionJob) bool {
	key := pendingKey(job)

	ep.Mutex.Lock()
	if ep.Pending[key] {
		ep.Mutex.Unlock()
		return false
	}
	ep.Pending[key] = true
	ep.Mutex.Unlock()

	select {
	case ep.JobQueue <- job:
		return true
	default:
		log.Printf("WARNING: Exclusion job queue full. Failed to queue recompute (%s)", key)
		ep.Mutex.Lock()
		delete(ep.Pending, key)
		ep.Mutex.Unlock()
		return false
	}
}

// EnqueueAll satisfies the scheduler's recompute hook.
func (ep *ExclusionProcessor) EnqueueAll(reason string) {
	ep.QueueJob(ExclusionJob{Scope: ScopeAllUsers, Reason: reason})
}

func (ep *ExclusionProcessor) Stop() {
	log.Println("Stopping exclusion workers...")
	close(ep.StopChan)
	ep.Wg.Wait()
	log.Println("All exclusion workers stopped")
}
