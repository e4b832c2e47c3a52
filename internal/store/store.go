// Package store persists synced jobs and serves the filtered read surface
// used by the dashboard and CLI.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/jobvalidator/internal/logging"
	"github.com/zulandar/jobvalidator/internal/models"
)

// insertBatchSize bounds rows per multi-row INSERT.
const insertBatchSize = 200

// Store wraps a gorm connection with the job schema's operations.
type Store struct {
	db  *gorm.DB
	log logrus.FieldLogger
	now func() time.Time
}

// New returns a Store over db. A nil logger discards output.
func New(db *gorm.DB, log logrus.FieldLogger) *Store {
	return &Store{
		db:  db,
		log: logging.OrDiscard(log).WithField("module", "store"),
		now: time.Now,
	}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Bundle is one job with every child row and flag computed for it.
type Bundle struct {
	Job              models.Job
	LineItems        []models.LineItem
	ChecklistParts   []models.ChecklistPart
	ChecklistAnswers []models.ChecklistAnswer
	CustomFields     []models.CustomField
	Flags            []models.ValidationFlag
	Organization     *models.Organization
}

// BatchResult reports what SaveBatch wrote.
type BatchResult struct {
	Jobs             int
	FlagsCreated     int
	FlagsByType      map[string]int
	ResolutionsKept  int
	OrganizationsSet int
}

// childTables are replaced wholesale for every job in a batch.
var childTables = []interface{}{
	&models.LineItem{},
	&models.ChecklistPart{},
	&models.ChecklistAnswer{},
	&models.CustomField{},
	&models.ValidationFlag{},
}

// SaveBatch upserts every job in bundles and replaces all of their child
// rows in one transaction. Child rows go in with multi-row inserts.
//
// A resolved flag survives when the recomputed flag for the same job has the
// same type and fingerprint; the new row inherits is_resolved and
// resolved_at. Any other recomputed flag starts unresolved.
func (s *Store) SaveBatch(ctx context.Context, bundles []Bundle) (BatchResult, error) {
	res := BatchResult{FlagsByType: map[string]int{}}
	bundles = dedupe(bundles)
	if len(bundles) == 0 {
		return res, nil
	}

	uids := make([]string, len(bundles))
	for i, b := range bundles {
		uids[i] = b.Job.JobUID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := resolvedFlags(tx, uids)
		if err != nil {
			return err
		}

		for _, m := range childTables {
			if err := tx.Where("job_uid IN ?", uids).Delete(m).Error; err != nil {
				return fmt.Errorf("store: clear %T: %w", m, err)
			}
		}

		orgs := organizations(bundles)
		if len(orgs) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "organization_uid"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
			}).Create(&orgs).Error; err != nil {
				return fmt.Errorf("store: upsert organizations: %w", err)
			}
		}
		res.OrganizationsSet = len(orgs)

		jobs := make([]models.Job, len(bundles))
		for i, b := range bundles {
			jobs[i] = b.Job
		}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(&jobs, insertBatchSize).Error; err != nil {
			return fmt.Errorf("store: upsert jobs: %w", err)
		}

		var (
			items   []models.LineItem
			parts   []models.ChecklistPart
			answers []models.ChecklistAnswer
			fields  []models.CustomField
			flags   []models.ValidationFlag
		)
		for _, b := range bundles {
			uid := b.Job.JobUID
			for _, it := range b.LineItems {
				it.ID, it.JobUID = 0, uid
				items = append(items, it)
			}
			for _, p := range b.ChecklistParts {
				p.ID, p.JobUID = 0, uid
				parts = append(parts, p)
			}
			for _, a := range b.ChecklistAnswers {
				a.ID, a.JobUID = 0, uid
				answers = append(answers, a)
			}
			for _, f := range b.CustomFields {
				f.ID, f.JobUID = 0, uid
				fields = append(fields, f)
			}
			for _, f := range b.Flags {
				f.ID, f.JobUID = 0, uid
				f.IsResolved, f.ResolvedAt = false, nil
				if at, ok := resolved[flagKey(uid, f.FlagType, f.Fingerprint)]; ok {
					f.IsResolved, f.ResolvedAt = true, at
					res.ResolutionsKept++
				}
				flags = append(flags, f)
				res.FlagsByType[f.FlagType]++
			}
		}

		if err := insertAll(tx, &items, len(items)); err != nil {
			return fmt.Errorf("store: insert line items: %w", err)
		}
		if err := insertAll(tx, &parts, len(parts)); err != nil {
			return fmt.Errorf("store: insert checklist parts: %w", err)
		}
		if err := insertAll(tx, &answers, len(answers)); err != nil {
			return fmt.Errorf("store: insert checklist text: %w", err)
		}
		if err := insertAll(tx, &fields, len(fields)); err != nil {
			return fmt.Errorf("store: insert custom fields: %w", err)
		}
		if err := insertAll(tx, &flags, len(flags)); err != nil {
			return fmt.Errorf("store: insert flags: %w", err)
		}
		res.FlagsCreated = len(flags)
		return nil
	})
	if err != nil {
		return BatchResult{FlagsByType: map[string]int{}}, err
	}
	res.Jobs = len(bundles)
	return res, nil
}

// SaveJob persists a single bundle. It is SaveBatch with one element.
func (s *Store) SaveJob(ctx context.Context, b Bundle) (BatchResult, error) {
	return s.SaveBatch(ctx, []Bundle{b})
}

func insertAll(tx *gorm.DB, rows interface{}, n int) error {
	if n == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, insertBatchSize).Error
}

// dedupe keeps the last bundle for each job uid, preserving first-seen order.
func dedupe(bundles []Bundle) []Bundle {
	idx := make(map[string]int, len(bundles))
	out := make([]Bundle, 0, len(bundles))
	for _, b := range bundles {
		if b.Job.JobUID == "" {
			continue
		}
		if i, ok := idx[b.Job.JobUID]; ok {
			out[i] = b
			continue
		}
		idx[b.Job.JobUID] = len(out)
		out = append(out, b)
	}
	return out
}

func organizations(bundles []Bundle) []models.Organization {
	seen := map[string]int{}
	var orgs []models.Organization
	for _, b := range bundles {
		o := b.Organization
		if o == nil || o.OrganizationUID == "" {
			continue
		}
		if i, ok := seen[o.OrganizationUID]; ok {
			orgs[i] = *o
			continue
		}
		seen[o.OrganizationUID] = len(orgs)
		orgs = append(orgs, *o)
	}
	return orgs
}

func flagKey(uid, flagType, fingerprint string) string {
	return uid + "\x00" + flagType + "\x00" + fingerprint
}

// resolvedFlags loads resolution state for the given jobs keyed by flagKey.
func resolvedFlags(tx *gorm.DB, uids []string) (map[string]*time.Time, error) {
	var rows []models.ValidationFlag
	if err := tx.Select("job_uid", "flag_type", "fingerprint", "resolved_at").
		Where("job_uid IN ? AND is_resolved = ?", uids, true).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: load resolved flags: %w", err)
	}
	out := make(map[string]*time.Time, len(rows))
	for _, r := range rows {
		if r.Fingerprint == "" {
			continue
		}
		out[flagKey(r.JobUID, r.FlagType, r.Fingerprint)] = r.ResolvedAt
	}
	return out, nil
}

// DeleteJobsOutsideCategories removes every job whose category is not in
// allowed, along with its child rows. It returns the number of jobs removed.
func (s *Store) DeleteJobsOutsideCategories(ctx context.Context, allowed []string) (int64, error) {
	if len(allowed) == 0 {
		return 0, errors.New("store: refusing to delete with an empty category allowlist")
	}
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var uids []string
		if err := tx.Model(&models.Job{}).Where("category NOT IN ?", allowed).
			Pluck("job_uid", &uids).Error; err != nil {
			return fmt.Errorf("store: find excluded jobs: %w", err)
		}
		if len(uids) == 0 {
			return nil
		}
		for start := 0; start < len(uids); start += insertBatchSize {
			end := min(start+insertBatchSize, len(uids))
			chunk := uids[start:end]
			for _, m := range childTables {
				if err := tx.Where("job_uid IN ?", chunk).Delete(m).Error; err != nil {
					return fmt.Errorf("store: delete %T: %w", m, err)
				}
			}
			r := tx.Where("job_uid IN ?", chunk).Delete(&models.Job{})
			if r.Error != nil {
				return fmt.Errorf("store: delete jobs: %w", r.Error)
			}
			removed += r.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.WithField("removed", removed).Info("deleted jobs outside allowed categories")
	}
	return removed, nil
}

// LastSyncedAt returns the most recent synced_at over all jobs. ok is false
// when the store holds no jobs.
func (s *Store) LastSyncedAt(ctx context.Context) (t time.Time, ok bool, err error) {
	var jobs []models.Job
	if err := s.db.WithContext(ctx).Select("job_uid", "synced_at").
		Order("synced_at DESC").Limit(1).Find(&jobs).Error; err != nil {
		return time.Time{}, false, fmt.Errorf("store: last synced_at: %w", err)
	}
	if len(jobs) == 0 || jobs[0].SyncedAt.IsZero() {
		return time.Time{}, false, nil
	}
	return jobs[0].SyncedAt, true, nil
}

// StartSyncLog appends an in-progress sync log row.
func (s *Store) StartSyncLog(ctx context.Context, runID, mode string, startedAt time.Time) (*models.SyncLog, error) {
	entry := &models.SyncLog{
		RunID:     runID,
		Mode:      mode,
		StartedAt: startedAt.UTC(),
		Status:    models.SyncInProgress,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("store: start sync log: %w", err)
	}
	return entry, nil
}

// FinishSyncLog writes the final counts and status. An entry still marked
// in progress is marked completed.
func (s *Store) FinishSyncLog(ctx context.Context, entry *models.SyncLog) error {
	now := s.now().UTC()
	entry.CompletedAt = &now
	if entry.Status == "" || entry.Status == models.SyncInProgress {
		entry.Status = models.SyncCompleted
	}
	if err := s.db.WithContext(ctx).Model(&models.SyncLog{}).Where("id = ?", entry.ID).Updates(map[string]interface{}{
		"completed_at":   entry.CompletedAt,
		"jobs_processed": entry.JobsProcessed,
		"jobs_skipped":   entry.JobsSkipped,
		"jobs_failed":    entry.JobsFailed,
		"flags_created":  entry.FlagsCreated,
		"errors":         entry.Errors,
		"status":         entry.Status,
	}).Error; err != nil {
		return fmt.Errorf("store: finish sync log %d: %w", entry.ID, err)
	}
	return nil
}
