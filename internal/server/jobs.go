package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banux/cbz-edit/internal/batch"
)

// Job states.
const (
	jobRunning = "running"
	jobDone    = "done"
	jobFailed  = "failed"
)

// maxFinishedJobs bounds how many finished jobs are remembered.
const maxFinishedJobs = 100

var errSeriesBusy = errors.New("a job is already running for this series")

// job is a batch started through the API.
type job struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Series   string         `json:"series"`
	State    string         `json:"state"`
	Error    string         `json:"error,omitempty"`
	Reports  []batch.Report `json:"reports,omitempty"`
	Started  time.Time      `json:"started"`
	Finished *time.Time     `json:"finished,omitempty"`
}

// jobStore tracks background batches. At most one job runs per series.
type jobStore struct {
	mu   sync.Mutex
	jobs map[string]*job
	busy map[string]string // series -> running job ID, "" for a held edit
	wg   sync.WaitGroup
	now  func() time.Time
}

func newJobStore() *jobStore {
	return &jobStore{
		jobs: make(map[string]*job),
		busy: make(map[string]string),
		now:  time.Now,
	}
}

// start runs fn in the background and returns a snapshot of the new job.
func (s *jobStore) start(kind, series string, fn func() ([]batch.Report, error)) (job, error) {
	s.mu.Lock()
	if _, ok := s.busy[series]; ok {
		s.mu.Unlock()
		return job{}, errSeriesBusy
	}
	j := &job{
		ID:      uuid.NewString(),
		Kind:    kind,
		Series:  series,
		State:   jobRunning,
		Started: s.now(),
	}
	s.jobs[j.ID] = j
	s.busy[series] = j.ID
	snapshot := *j
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		reports, err := fn()
		s.finish(j, reports, err)
	}()
	return snapshot, nil
}

// hold marks series busy while a single-chapter edit runs in the request.
// release must be called when the edit is done.
func (s *jobStore) hold(series string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy[series]; ok {
		return nil, errSeriesBusy
	}
	s.busy[series] = ""
	return func() {
		s.mu.Lock()
		delete(s.busy, series)
		s.mu.Unlock()
	}, nil
}

func (s *jobStore) finish(j *job, reports []batch.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	j.Reports = reports
	j.Finished = &now
	j.State = jobDone
	if err != nil {
		j.State = jobFailed
		j.Error = err.Error()
	}
	delete(s.busy, j.Series)
	s.prune()
}

// prune drops the oldest finished jobs beyond maxFinishedJobs.
func (s *jobStore) prune() {
	var finished []*job
	for _, j := range s.jobs {
		if j.Finished != nil {
			finished = append(finished, j)
		}
	}
	if len(finished) <= maxFinishedJobs {
		return
	}
	sort.Slice(finished, func(a, b int) bool { return finished[a].Finished.Before(*finished[b].Finished) })
	for _, j := range finished[:len(finished)-maxFinishedJobs] {
		delete(s.jobs, j.ID)
	}
}

func (s *jobStore) get(id string) (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job{}, false
	}
	return *j, true
}

// list returns every known job, newest first.
func (s *jobStore) list() []job {
	s.mu.Lock()
	out := make([]job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	s.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].Started.After(out[b].Started) })
	return out
}

// wait blocks until every running job has finished.
func (s *jobStore) wait() { s.wg.Wait() }
