package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"framesched/internal/host"
	"framesched/internal/job"
	"framesched/internal/priority"
	"framesched/internal/sched"
)

type taskView struct {
	ID           sched.TaskID `json:"id"`
	Priority     string       `json:"priority"`
	ExpirationMS float64      `json:"expiration_ms"`
	Scheduled    bool         `json:"scheduled"`
}

func viewOf(t *sched.Task) taskView {
	return taskView{
		ID:           t.ID,
		Priority:     t.Priority.String(),
		ExpirationMS: float64(t.ExpirationTime) / float64(time.Millisecond),
		Scheduled:    t.Scheduled(),
	}
}

type jobView struct {
	ID       sched.TaskID `json:"id"`
	Priority string       `json:"priority"`
	Done     int          `json:"done"`
	Total    int          `json:"total"`
	Slices   int          `json:"slices"`
	Finished bool         `json:"finished"`
	Live     *taskView    `json:"live,omitempty"`
}

// submitRequest asks for a demo job of Units units, each sleeping UnitMS.
type submitRequest struct {
	Priority  string `json:"priority"`
	Units     int    `json:"units"`
	UnitMS    int64  `json:"unit_ms"`
	TimeoutMS *int64 `json:"timeout_ms,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	Now    string `json:"now"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var now time.Duration
	if err := s.onLoop(r, func() error {
		now = s.sched.Now()
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	respondOK(w, r, healthResponse{Status: "healthy", Now: now.String()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var st sched.Stats
	if err := s.onLoop(r, func() error {
		st = s.sched.Stats()
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	respondOK(w, r, st)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.onLoop(r, func() error {
		s.sched.Pause()
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.onLoop(r, func() error {
		s.sched.Resume()
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var views []taskView
	if err := s.onLoop(r, func() error {
		for _, t := range s.sched.PendingTasks() {
			views = append(views, viewOf(t))
		}
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	if views == nil {
		views = []taskView{}
	}
	respondOK(w, r, views)
}

func (s *Server) handleNextTask(w http.ResponseWriter, r *http.Request) {
	var view *taskView
	if err := s.onLoop(r, func() error {
		if t := s.sched.PeekNextTask(); t != nil {
			v := viewOf(t)
			view = &v
		}
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	if view == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondOK(w, r, view)
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	level := priority.Normal
	if req.Priority != "" {
		var err error
		if level, err = priority.Parse(req.Priority); err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Units <= 0 {
		respondError(w, r, http.StatusBadRequest, "units must be positive")
		return
	}
	if req.UnitMS < 0 {
		respondError(w, r, http.StatusBadRequest, "unit_ms must not be negative")
		return
	}

	var opts []sched.TaskOption
	if req.TimeoutMS != nil {
		opts = append(opts, sched.WithTimeout(time.Duration(*req.TimeoutMS)*time.Millisecond))
	}

	var view jobView
	if err := s.onLoop(r, func() error {
		cb, progress := job.Chunked(s.sched, req.Units, job.SleepWork(time.Duration(req.UnitMS)*time.Millisecond))
		t := s.sched.ScheduleTask(level, cb, opts...)
		j := s.jobs.add(t, progress)
		view = j.view()
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	s.logger.Info("job submitted", "id", view.ID, "priority", view.Priority, "units", req.Units)
	respondJSON(w, r, http.StatusCreated, view)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var view jobView
	var found bool
	if err := s.onLoop(r, func() error {
		var j *submittedJob
		if j, found = s.jobs.get(id); found {
			view = j.view()
		}
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	if !found {
		respondError(w, r, http.StatusNotFound, "no such job")
		return
	}
	respondOK(w, r, view)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var cancelled bool
	if err := s.onLoop(r, func() error {
		t := s.jobs.live(id)
		if t == nil {
			for _, p := range s.sched.PendingTasks() {
				if p.ID == id {
					t = p
					break
				}
			}
		}
		cancelled = s.sched.CancelTask(t)
		return nil
	}); err != nil {
		respondLoopError(w, r, err)
		return
	}
	if !cancelled {
		respondError(w, r, http.StatusNotFound, "task is not pending")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (sched.TaskID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid task id")
		return 0, false
	}
	return sched.TaskID(n), true
}

func respondLoopError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, host.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	respondError(w, r, status, err.Error())
}
