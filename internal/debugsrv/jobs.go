package debugsrv

import (
	"framesched/internal/job"
	"framesched/internal/priority"
	"framesched/internal/sched"
)

// maxJobs bounds how many submitted jobs the server remembers.
const maxJobs = 256

// submittedJob is a demo job started over HTTP, keyed by its first task.
type submittedJob struct {
	id       sched.TaskID
	level    priority.Level
	current  *sched.Task
	progress *job.Progress
}

// liveTask follows continuations to the task still queued, if any. It keeps
// only the latest task of the chain so finished slices can be collected.
func (j *submittedJob) liveTask() *sched.Task {
	for !j.current.Scheduled() {
		next := j.current.Continuation()
		if next == nil {
			return nil
		}
		j.current = next
	}
	return j.current
}

func (j *submittedJob) view() jobView {
	v := jobView{
		ID:       j.id,
		Priority: j.level.String(),
		Done:     j.progress.Done,
		Total:    j.progress.Total,
		Slices:   j.progress.Slices,
		Finished: j.progress.Finished(),
	}
	if t := j.liveTask(); t != nil {
		tv := viewOf(t)
		v.Live = &tv
	}
	return v
}

// jobTable is only touched on the loop goroutine.
type jobTable struct {
	limit int
	order []sched.TaskID
	byID  map[sched.TaskID]*submittedJob
}

func newJobTable(limit int) *jobTable {
	return &jobTable{limit: limit, byID: make(map[sched.TaskID]*submittedJob)}
}

func (t *jobTable) add(first *sched.Task, p *job.Progress) *submittedJob {
	j := &submittedJob{id: first.ID, level: first.Priority, current: first, progress: p}
	t.byID[first.ID] = j
	t.order = append(t.order, first.ID)
	t.evict()
	return j
}

// evict forgets settled jobs, oldest first, while the table is over its limit.
// Jobs with a queued task are kept.
func (t *jobTable) evict() {
	excess := len(t.order) - t.limit
	if excess <= 0 {
		return
	}
	kept := t.order[:0]
	for _, id := range t.order {
		if excess > 0 && t.byID[id].liveTask() == nil {
			delete(t.byID, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}

func (t *jobTable) get(id sched.TaskID) (*submittedJob, bool) {
	j, ok := t.byID[id]
	return j, ok
}

// live returns the queued task carrying job id's remaining work.
func (t *jobTable) live(id sched.TaskID) *sched.Task {
	if j, ok := t.byID[id]; ok {
		return j.liveTask()
	}
	return nil
}
