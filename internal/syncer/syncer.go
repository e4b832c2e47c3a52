// Package syncer runs a sync pass: fetch jobs from Zuper, enrich them in
// batches, derive entities and flags, persist each batch and announce newly
// flagged jobs.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zulandar/jobvalidator/internal/config"
	"github.com/zulandar/jobvalidator/internal/extract"
	"github.com/zulandar/jobvalidator/internal/logging"
	"github.com/zulandar/jobvalidator/internal/metrics"
	"github.com/zulandar/jobvalidator/internal/models"
	"github.com/zulandar/jobvalidator/internal/notify"
	"github.com/zulandar/jobvalidator/internal/store"
	"github.com/zulandar/jobvalidator/internal/synclock"
	"github.com/zulandar/jobvalidator/internal/validate"
	"github.com/zulandar/jobvalidator/internal/zuper"
)

// Mode selects which jobs a run fetches.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeIncremental:
		return Mode(s), nil
	}
	return "", fmt.Errorf("syncer: unknown mode %q (want full or incremental)", s)
}

// Outcome lets callers tell an empty run from a failed or partial one.
type Outcome string

const (
	OutcomeEmpty   Outcome = "empty"
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// JobSource lists and enriches jobs. *zuper.Client implements it.
type JobSource interface {
	FetchAllJobs(ctx context.Context, progress zuper.PageProgress) ([]zuper.Job, error)
	EnrichMany(ctx context.Context, jobs []zuper.Job, progress zuper.EnrichProgress) []zuper.Job
}

// AlertSender announces flagged jobs. *notify.Notifier implements it.
type AlertSender interface {
	NotifyIfNew(ctx context.Context, a notify.Alert, force bool) (notify.Outcome, error)
}

// Progress is reported as a run advances.
type Progress struct {
	Stage string
	Done  int
	Total int
}

// Progress stages.
const (
	StageFetch   = "fetch"
	StageEnrich  = "enrich"
	StagePersist = "persist"
)

// Options tunes a Coordinator.
type Options struct {
	AllowedCategories []string
	Rules             validate.Rules
	BatchSize         int
	NotifyWindow      time.Duration
	OnProgress        func(Progress)
}

// OptionsFromConfig maps the sync config section onto Options.
func OptionsFromConfig(cfg config.SyncConfig) Options {
	return Options{
		AllowedCategories: cfg.AllowedCategories,
		Rules: validate.Rules{
			SkipCategories:  cfg.SkipValidationCategories,
			ConsumableTerms: cfg.ConsumableTerms,
		},
		BatchSize:    cfg.BatchSize,
		NotifyWindow: cfg.NotifyWindow,
	}
}

const (
	defaultBatchSize    = 150
	defaultNotifyWindow = 48 * time.Hour
)

// Deps are the collaborators of a Coordinator. Notifier and Locker are
// optional.
type Deps struct {
	Source   JobSource
	Store    *store.Store
	Notifier AlertSender
	Locker   synclock.Locker
	Logger   logrus.FieldLogger
}

// Coordinator runs sync passes.
type Coordinator struct {
	source   JobSource
	store    *store.Store
	notifier AlertSender
	locker   synclock.Locker
	log      logrus.FieldLogger
	opts     Options
	allowed  map[string]bool
	now      func() time.Time
}

// New builds a Coordinator.
func New(deps Deps, opts Options) (*Coordinator, error) {
	if deps.Source == nil {
		return nil, errors.New("syncer: job source is required")
	}
	if deps.Store == nil {
		return nil, errors.New("syncer: store is required")
	}
	if len(opts.AllowedCategories) == 0 {
		return nil, errors.New("syncer: allowed categories must not be empty")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.NotifyWindow <= 0 {
		opts.NotifyWindow = defaultNotifyWindow
	}
	locker := deps.Locker
	if locker == nil {
		locker = &synclock.Local{}
	}
	allowed := make(map[string]bool, len(opts.AllowedCategories))
	for _, c := range opts.AllowedCategories {
		allowed[c] = true
	}
	return &Coordinator{
		source:   deps.Source,
		store:    deps.Store,
		notifier: deps.Notifier,
		locker:   locker,
		log:      logging.OrDiscard(deps.Logger).WithField("module", "syncer"),
		opts:     opts,
		allowed:  allowed,
		now:      time.Now,
	}, nil
}

// BatchReport summarises one persisted batch.
type BatchReport struct {
	Index        int
	Jobs         int
	Processed    int
	Failed       int
	FlagsCreated int
	Err          string
}

// Result is the structured outcome of one run.
type Result struct {
	RunID                string
	Mode                 Mode
	Outcome              Outcome
	StartedAt            time.Time
	FinishedAt           time.Time
	Cutoff               string
	Fetched              int
	Processed            int
	Skipped              int
	Failed               int
	FlagsCreated         int
	FlagsByType          map[string]int
	ResolutionsKept      int
	Removed              int64
	Notified             int
	NotifyFailures       int
	Errors               []string
	CategoriesFound      []string
	UnexpectedCategories []string
	Batches              []BatchReport
}

func (r *Result) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Run executes one sync pass. Per-job and per-batch failures are collected
// into the result; the returned error is set only when the lock could not be
// taken, the sync log could not be written or the job list could not be
// fetched. Cancelling ctx stops the run between batches.
func (c *Coordinator) Run(ctx context.Context, mode Mode) (*Result, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	release, err := c.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			c.log.WithError(err).Warn("release sync lock")
		}
	}()

	res := &Result{
		RunID:       uuid.NewString(),
		Mode:        mode,
		StartedAt:   c.now().UTC(),
		FlagsByType: map[string]int{},
	}
	log := c.log.WithFields(logrus.Fields{"run_id": res.RunID, "mode": mode})

	entry, err := c.store.StartSyncLog(ctx, res.RunID, string(mode), res.StartedAt)
	if err != nil {
		return nil, err
	}
	log.Info("sync started")

	jobs, err := c.fetch(ctx, mode, res)
	if err != nil {
		res.addError("fetch jobs: %v", err)
		res.Outcome = OutcomeFailed
		entry.Status = models.SyncFailed
		c.finish(ctx, log, entry, res)
		return res, fmt.Errorf("syncer: %w", err)
	}
	res.Fetched = len(jobs)

	if mode == ModeFull {
		removed, err := c.store.DeleteJobsOutsideCategories(ctx, c.opts.AllowedCategories)
		if err != nil {
			res.addError("remove excluded categories: %v", err)
		}
		res.Removed = removed
	}

	eligible := c.partition(jobs, res)
	c.processBatches(ctx, log, eligible, res)

	switch {
	case len(res.Errors) > 0 || res.Failed > 0:
		res.Outcome = OutcomePartial
	case res.Processed == 0:
		res.Outcome = OutcomeEmpty
	default:
		res.Outcome = OutcomeOK
	}
	c.finish(ctx, log, entry, res)
	return res, nil
}

func (c *Coordinator) fetch(ctx context.Context, mode Mode, res *Result) ([]zuper.Job, error) {
	if mode == ModeIncremental {
		last, ok, err := c.store.LastSyncedAt(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Cutoff = zuper.FormatCutoff(last)
		}
	}
	jobs, err := c.source.FetchAllJobs(ctx, func(page, total, soFar int) {
		c.progress(StageFetch, page, total)
	})
	if err != nil {
		return nil, err
	}
	return zuper.FilterUpdatedSince(jobs, res.Cutoff), nil
}

// partition drops malformed jobs and jobs outside the allowlist, recording
// every category seen.
func (c *Coordinator) partition(jobs []zuper.Job, res *Result) []zuper.Job {
	found := map[string]bool{}
	eligible := make([]zuper.Job, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if job.Malformed != nil {
			res.Failed++
			res.addError("job %s: %v", orUnknown(job.JobUID), job.Malformed)
			continue
		}
		cat := extract.Category(job)
		found[cat] = true
		if !c.allowed[cat] {
			res.Skipped++
			continue
		}
		eligible = append(eligible, *job)
	}
	for cat := range found {
		res.CategoriesFound = append(res.CategoriesFound, cat)
		if !c.allowed[cat] {
			res.UnexpectedCategories = append(res.UnexpectedCategories, cat)
		}
	}
	sort.Strings(res.CategoriesFound)
	sort.Strings(res.UnexpectedCategories)
	return eligible
}

func (c *Coordinator) processBatches(ctx context.Context, log logrus.FieldLogger, jobs []zuper.Job, res *Result) {
	size := c.opts.BatchSize
	cancelled := func(start int) bool {
		err := ctx.Err()
		if err == nil {
			return false
		}
		remaining := len(jobs) - start
		res.addError("run cancelled with %d jobs unprocessed: %v", remaining, err)
		log.WithField("unprocessed", remaining).Warn("sync cancelled between batches")
		return true
	}
	for start, idx := 0, 0; start < len(jobs); start, idx = start+size, idx+1 {
		if cancelled(start) {
			return
		}
		end := min(start+size, len(jobs))
		c.progress(StageEnrich, start, len(jobs))
		enriched := c.source.EnrichMany(ctx, jobs[start:end], nil)
		// A batch enriched under a cancelled context holds placeholder
		// records and is not written.
		if cancelled(start) {
			return
		}

		report := c.persistBatch(context.WithoutCancel(ctx), log, idx, enriched, res)
		res.Batches = append(res.Batches, report)
		c.progress(StagePersist, end, len(jobs))
	}
}

type built struct {
	bundle store.Bundle
	job    *zuper.Job
}

func (c *Coordinator) persistBatch(ctx context.Context, log logrus.FieldLogger, idx int, jobs []zuper.Job, res *Result) BatchReport {
	report := BatchReport{Index: idx, Jobs: len(jobs)}
	var ok []built
	for i := range jobs {
		b, err := c.buildBundle(&jobs[i], res.StartedAt)
		if err != nil {
			report.Failed++
			res.addError("job %s: %v", orUnknown(jobs[i].JobUID), err)
			continue
		}
		ok = append(ok, built{bundle: b, job: &jobs[i]})
	}

	bundles := make([]store.Bundle, len(ok))
	for i, b := range ok {
		bundles[i] = b.bundle
	}
	started := time.Now()
	saved, err := c.store.SaveBatch(ctx, bundles)
	metrics.BatchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		report.Failed += len(ok)
		report.Err = err.Error()
		res.Failed += report.Failed
		res.addError("batch %d: %v", idx, err)
		log.WithError(err).WithField("batch", idx).Error("batch persist failed, continuing")
		return report
	}

	report.Processed = saved.Jobs
	report.FlagsCreated = saved.FlagsCreated
	res.Processed += saved.Jobs
	res.Failed += report.Failed
	res.FlagsCreated += saved.FlagsCreated
	res.ResolutionsKept += saved.ResolutionsKept
	for t, n := range saved.FlagsByType {
		res.FlagsByType[t] += n
	}
	log.WithFields(logrus.Fields{
		"batch":     idx,
		"processed": report.Processed,
		"failed":    report.Failed,
		"flags":     report.FlagsCreated,
	}).Info("batch persisted")

	for _, b := range ok {
		c.maybeNotify(ctx, log, b.bundle, res)
	}
	return report
}

// buildBundle derives every row for one job. A panic while walking the
// record is reported as an error for that job only.
func (c *Coordinator) buildBundle(job *zuper.Job, syncedAt time.Time) (b store.Bundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected record shape: %v", r)
		}
	}()
	if job.Malformed != nil {
		return b, job.Malformed
	}
	if job.JobUID == "" {
		return b, errors.New("missing job_uid")
	}
	rec := extract.Extract(job, syncedAt)
	flags := c.opts.Rules.Evaluate(rec.Job.Category, rec.LineItems, rec.ChecklistParts, rec.Job.NetsuiteID)
	return store.Bundle{
		Job:              rec.Job,
		LineItems:        rec.LineItems,
		ChecklistParts:   rec.ChecklistParts,
		ChecklistAnswers: rec.ChecklistAnswers,
		CustomFields:     rec.CustomFields,
		Flags:            flags,
		Organization:     rec.Organization,
	}, nil
}

func (c *Coordinator) maybeNotify(ctx context.Context, log logrus.FieldLogger, b store.Bundle, res *Result) {
	if c.notifier == nil {
		return
	}
	var flag *models.ValidationFlag
	for i := range b.Flags {
		if b.Flags[i].FlagType == models.FlagMissingNetsuiteID {
			flag = &b.Flags[i]
			break
		}
	}
	if flag == nil || !c.recentlyCompleted(b.Job.CompletedAt) {
		return
	}

	var details validate.MissingNetsuiteDetails
	if len(flag.Details) > 0 {
		if err := json.Unmarshal(flag.Details, &details); err != nil {
			log.WithError(err).WithField("job_uid", b.Job.JobUID).Warn("decode flag details")
		}
	}
	outcome, err := c.notifier.NotifyIfNew(ctx, notify.MissingNetsuiteAlert(b.Job, details.LineItems), false)
	switch {
	case outcome == notify.OutcomeSent:
		res.Notified++
	case outcome == notify.OutcomeFailed:
		res.NotifyFailures++
	}
	if err != nil {
		log.WithError(err).WithField("job_uid", b.Job.JobUID).Warn("notification not delivered")
	}
}

// recentlyCompleted reports whether completedAt falls inside the notify
// window ending now.
func (c *Coordinator) recentlyCompleted(completedAt *string) bool {
	if completedAt == nil || *completedAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, *completedAt)
	if err != nil {
		return false
	}
	return t.After(c.now().Add(-c.opts.NotifyWindow))
}

func (c *Coordinator) finish(ctx context.Context, log logrus.FieldLogger, entry *models.SyncLog, res *Result) {
	res.FinishedAt = c.now().UTC()
	entry.JobsProcessed = res.Processed
	entry.JobsSkipped = res.Skipped
	entry.JobsFailed = res.Failed
	entry.FlagsCreated = res.FlagsCreated
	if len(res.Errors) > 0 {
		if data, err := json.Marshal(res.Errors); err == nil {
			entry.Errors = string(data)
		}
	}
	if err := c.store.FinishSyncLog(context.WithoutCancel(ctx), entry); err != nil {
		res.addError("finish sync log: %v", err)
		log.WithError(err).Error("could not finish sync log")
	}

	metrics.SyncJobs.WithLabelValues("processed").Add(float64(res.Processed))
	metrics.SyncJobs.WithLabelValues("skipped").Add(float64(res.Skipped))
	metrics.SyncJobs.WithLabelValues("failed").Add(float64(res.Failed))
	for t, n := range res.FlagsByType {
		metrics.FlagsCreated.WithLabelValues(t).Add(float64(n))
	}
	metrics.SyncRuns.WithLabelValues(string(res.Mode), string(res.Outcome)).Inc()
	metrics.LastSyncTimestamp.Set(float64(res.FinishedAt.Unix()))

	fields := logrus.Fields{
		"outcome":   res.Outcome,
		"fetched":   res.Fetched,
		"processed": res.Processed,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"flags":     res.FlagsCreated,
		"removed":   res.Removed,
		"notified":  res.Notified,
		"errors":    len(res.Errors),
		"duration":  res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String(),
	}
	if len(res.UnexpectedCategories) > 0 {
		log.WithField("categories", res.UnexpectedCategories).Warn("skipped jobs in categories outside the allowlist")
	}
	log.WithFields(fields).Info("sync finished")
}

func (c *Coordinator) progress(stage string, done, total int) {
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(Progress{Stage: stage, Done: done, Total: total})
	}
}

func orUnknown(uid string) string {
	if uid == "" {
		return "unknown"
	}
	return uid
}
