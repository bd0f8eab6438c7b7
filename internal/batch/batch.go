// Package batch applies ComicInfo rewrites to many chapter archives at once.
//
// An Applier runs at most Limit rewrites at a time. Every job runs to
// completion even when others fail: successful rewrites are never rolled
// back, and Run reports the first failure it saw.
package batch

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/cbz"
	"github.com/banux/cbz-edit/internal/comicinfo"
	"github.com/banux/cbz-edit/internal/progress"
)

// ErrWorkerFailure is returned when a rewrite terminated abnormally.
var ErrWorkerFailure = errors.New("batch: worker failed")

// Job is one archive to rewrite with its candidate record.
type Job struct {
	Path      string
	Title     string // shown in status messages; defaults to Path
	Candidate comicinfo.ComicInfo
}

func (j Job) label() string {
	if j.Title != "" {
		return j.Title
	}
	return j.Path
}

// JobError wraps the failure of a single job.
type JobError struct {
	Path string
	Err  error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", filepath.Base(e.Path), e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Report summarizes a finished batch.
type Report struct {
	ID      string        `json:"id"`
	Policy  string        `json:"policy"`
	Total   int           `json:"total"`
	Failed  []string      `json:"failed,omitempty"` // paths, in completion order
	Elapsed time.Duration `json:"elapsed"`
}

// Options configures New.
type Options struct {
	// Limit bounds concurrent rewrites. Zero means runtime.NumCPU().
	Limit int

	// Sink receives status messages. Nil discards them.
	Sink progress.Sink

	// Journal, when set, records one revision per job.
	Journal catalog.Journal

	Logger zerolog.Logger
}

// Applier runs rewrite jobs with bounded parallelism.
type Applier struct {
	limit   int
	sink    progress.Sink
	journal catalog.Journal
	log     zerolog.Logger

	rewrite func(path string, candidate comicinfo.ComicInfo, policy comicinfo.Policy) error
	now     func() time.Time
}

// New returns an Applier configured by opts.
func New(opts Options) *Applier {
	if opts.Limit <= 0 {
		opts.Limit = runtime.NumCPU()
	}
	if opts.Sink == nil {
		opts.Sink = progress.Discard
	}
	log := opts.Logger.With().Str("component", "batch").Logger()
	return &Applier{
		limit:   opts.Limit,
		sink:    opts.Sink,
		journal: opts.Journal,
		log:     log,
		rewrite: cbz.Rewriter{Logger: log}.Rewrite,
		now:     time.Now,
	}
}

// Limit returns the concurrency bound.
func (a *Applier) Limit() int { return a.limit }

// Run rewrites every job with policy and returns the first error.
func (a *Applier) Run(jobs []Job, policy comicinfo.Policy) error {
	_, err := a.Execute(jobs, policy)
	return err
}

// Execute is Run that also returns the batch report.
func (a *Applier) Execute(jobs []Job, policy comicinfo.Policy) (Report, error) {
	rep := Report{
		ID:     uuid.NewString(),
		Policy: policy.String(),
		Total:  len(jobs),
	}
	start := a.now()
	log := a.log.With().Str("batch", rep.ID).Str("policy", rep.Policy).Logger()
	log.Info().Int("jobs", len(jobs)).Int("limit", a.limit).Msg("batch started")

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(a.limit)

	for i, job := range jobs {
		g.Go(func() error {
			a.sink.Send(fmt.Sprintf("Processing %d/%d: %s", i+1, len(jobs), job.label()))
			if err := a.apply(rep.ID, job, policy); err != nil {
				mu.Lock()
				rep.Failed = append(rep.Failed, job.Path)
				mu.Unlock()
				log.Warn().Err(err).Str("path", job.Path).Msg("rewrite failed")
				return err
			}
			log.Debug().Str("path", job.Path).Msg("rewrote archive")
			return nil
		})
	}
	err := g.Wait()

	rep.Elapsed = a.now().Sub(start)
	a.sink.Send(summary(len(jobs), len(rep.Failed), rep.Elapsed))
	log.Info().
		Int("failed", len(rep.Failed)).
		Dur("elapsed", rep.Elapsed).
		Msg("batch finished")
	return rep, err
}

// SaveChapter replaces the record of a single chapter with info.
func (a *Applier) SaveChapter(ch catalog.Chapter, info comicinfo.ComicInfo) error {
	title := ch.Title
	if title == "" {
		title = ch.Path
	}
	start := a.now()
	a.sink.Send("Processing: " + title)

	if err := a.apply(uuid.NewString(), Job{Path: ch.Path, Title: title, Candidate: info}, comicinfo.ReplaceAll); err != nil {
		a.log.Warn().Err(err).Str("path", ch.Path).Msg("save failed")
		return err
	}

	a.sink.Send(fmt.Sprintf("All done~ processed chapter in %s", round(a.now().Sub(start))))
	return nil
}

// ApplySeries writes the series-wide fields of info to every chapter.
func (a *Applier) ApplySeries(chapters []catalog.Chapter, info comicinfo.ComicInfo) (Report, error) {
	jobs := make([]Job, len(chapters))
	for i, ch := range chapters {
		jobs[i] = Job{Path: ch.Path, Title: ch.Title, Candidate: info}
	}
	return a.Execute(jobs, comicinfo.MergeShared)
}

// DeriveChapters writes each chapter's filename-derived title, number,
// volume and translators into its own archive.
func (a *Applier) DeriveChapters(chapters []catalog.Chapter) (Report, error) {
	jobs := make([]Job, len(chapters))
	for i, ch := range chapters {
		jobs[i] = Job{Path: ch.Path, Title: ch.Title, Candidate: FromChapter(ch)}
	}
	return a.Execute(jobs, comicinfo.DeriveFromFilename)
}

// ApplyVolume sets the volume of every chapter.
func (a *Applier) ApplyVolume(chapters []catalog.Chapter, volume *uint32) (Report, error) {
	info := comicinfo.ComicInfo{Volume: volume}
	jobs := make([]Job, len(chapters))
	for i, ch := range chapters {
		jobs[i] = Job{Path: ch.Path, Title: ch.Title, Candidate: info}
	}
	return a.Execute(jobs, comicinfo.VolumeOnly)
}

// FromChapter builds the candidate record a chapter's filename implies.
func FromChapter(ch catalog.Chapter) comicinfo.ComicInfo {
	info := comicinfo.ComicInfo{
		Title:      ch.Title,
		Translator: strings.Join(ch.Translators, ", "),
	}
	if ch.Number != nil {
		n := *ch.Number
		info.Number = &n
	}
	if ch.Volume != nil {
		v := *ch.Volume
		info.Volume = &v
	}
	return info
}

// apply runs one rewrite, turning a panic into ErrWorkerFailure, and
// journals the attempt.
func (a *Applier) apply(batchID string, job Job, policy comicinfo.Policy) (err error) {
	started := a.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerFailure, r)
		}
		if err != nil {
			err = &JobError{Path: job.Path, Err: err}
		}
		a.record(batchID, job, policy, started, err)
	}()
	return a.rewrite(job.Path, job.Candidate, policy)
}

func (a *Applier) record(batchID string, job Job, policy comicinfo.Policy, started time.Time, err error) {
	if a.journal == nil {
		return
	}
	rev := catalog.Revision{
		ID:      uuid.NewString(),
		BatchID: batchID,
		Path:    job.Path,
		Policy:  policy.String(),
		Started: started,
		Elapsed: a.now().Sub(started),
	}
	if doc, mErr := comicinfo.Marshal(job.Candidate); mErr == nil {
		rev.Record = doc
	}
	if err != nil {
		rev.Error = err.Error()
	}
	if jErr := a.journal.Record(rev); jErr != nil {
		a.log.Warn().Err(jErr).Str("path", job.Path).Msg("journal record failed")
	}
}

func summary(total, failed int, elapsed time.Duration) string {
	msg := fmt.Sprintf("All done~ processed %d chapters in %s", total, round(elapsed))
	if failed > 0 {
		msg += fmt.Sprintf(" (%d failed)", failed)
	}
	return msg
}

func round(d time.Duration) time.Duration {
	if d > time.Second {
		return d.Round(10 * time.Millisecond)
	}
	return d.Round(10 * time.Microsecond)
}
