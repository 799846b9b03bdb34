package sched

import (
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// nodeKey is used as a key in the red-black tree.
//
// Regular inserts take increasing positive sequence numbers, so equal
// expirations run in insertion order. Continuations take decreasing negative
// ones, so each lands before every task sharing its expiration, including
// earlier continuations.
type nodeKey struct {
	expiration time.Duration
	seq        int64
}

// cmp implements the Comparator for red-black tree ordering.
func cmp(a, b any) int {
	return compareKeys(a.(nodeKey), b.(nodeKey))
}

func compareKeys(ka, kb nodeKey) int {
	switch {
	case ka.expiration < kb.expiration:
		return -1
	case ka.expiration > kb.expiration:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// queue holds pending tasks ordered by expiration.
type queue struct {
	rbt     *redblacktree.Tree
	head    *Task
	seq     int64
	contSeq int64
}

func newQueue() *queue {
	return &queue{rbt: redblacktree.NewWith(cmp)}
}

// insert queues t after every task with an equal or earlier expiration and
// reports whether t became the head.
func (q *queue) insert(t *Task) bool {
	q.seq++
	return q.put(t, nodeKey{expiration: t.ExpirationTime, seq: q.seq})
}

// insertContinuation queues t before every task with an equal or later
// expiration and reports whether t became the head.
func (q *queue) insertContinuation(t *Task) bool {
	q.contSeq--
	return q.put(t, nodeKey{expiration: t.ExpirationTime, seq: q.contSeq})
}

func (q *queue) put(t *Task, key nodeKey) bool {
	if t.queued {
		panic("sched: task is already queued")
	}
	t.key = key
	t.queued = true
	q.rbt.Put(key, t)
	if q.head == nil || compareKeys(key, q.head.key) < 0 {
		q.head = t
		return true
	}
	return false
}

func (q *queue) peek() *Task { return q.head }

func (q *queue) len() int { return q.rbt.Size() }

// removeHead unlinks and returns the earliest task. The queue must not be
// empty.
func (q *queue) removeHead() *Task {
	t := q.head
	if t == nil {
		panic("sched: removeHead on empty task queue")
	}
	q.unlink(t)
	return t
}

// cancel unlinks t wherever it sits and reports whether it was queued.
func (q *queue) cancel(t *Task) bool {
	if !t.queued {
		return false
	}
	q.unlink(t)
	return true
}

func (q *queue) unlink(t *Task) {
	q.rbt.Remove(t.key)
	t.queued = false
	if q.head == t {
		q.head = nil
		if n := q.rbt.Left(); n != nil {
			q.head = n.Value.(*Task)
		}
	}
}

// tasks returns the queued tasks in run order.
func (q *queue) tasks() []*Task {
	out := make([]*Task, 0, q.rbt.Size())
	for _, v := range q.rbt.Values() {
		out = append(out, v.(*Task))
	}
	return out
}
