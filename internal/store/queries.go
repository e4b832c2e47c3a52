package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/jobvalidator/internal/models"
	"github.com/zulandar/jobvalidator/internal/serial"
)

// Job list filters.
const (
	FilterAll             = "all"
	FilterMissingNetsuite = "missing_netsuite"
	FilterPartsNoItems    = "parts_no_items"
	FilterFlagged         = "flagged"
	FilterPassing         = "passing"
)

// ErrInvalidFilter marks a JobFilter with an unknown filter name or an
// unparseable date.
var ErrInvalidFilter = errors.New("store: invalid filter")

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// effectiveDate is the date a job is filed under for month and range filters.
const effectiveDate = "COALESCE(jobs.completed_at, jobs.created_at)"

// JobFilter narrows ListJobs. Empty fields do not filter.
type JobFilter struct {
	Filter       string
	Month        string // YYYY-MM
	DateFrom     string // YYYY-MM-DD, inclusive
	DateTo       string // YYYY-MM-DD, inclusive
	Organization string
	ServiceTeam  string
	Category     string
	JobNumber    string
	PartSearch   string
	SerialSearch string
	Asset        string
	Page         int
	PageSize     int
}

// JobPage is one page of ListJobs output. Jobs carry their unresolved flags.
type JobPage struct {
	Jobs     []models.Job
	Total    int64
	Page     int
	PageSize int
}

// ValidFilter reports whether name is a known list filter.
func ValidFilter(name string) bool {
	switch name {
	case "", FilterAll, FilterMissingNetsuite, FilterPartsNoItems, FilterFlagged, FilterPassing:
		return true
	}
	return false
}

// ListJobs returns jobs matching f, newest created first.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) (JobPage, error) {
	if !ValidFilter(f.Filter) {
		return JobPage{}, fmt.Errorf("%w: unknown filter %q", ErrInvalidFilter, f.Filter)
	}
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	scoped, err := applyJobFilter(s.db.WithContext(ctx).Model(&models.Job{}), f)
	if err != nil {
		return JobPage{}, err
	}
	var total int64
	if err := scoped.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return JobPage{}, fmt.Errorf("store: count jobs: %w", err)
	}

	var jobs []models.Job
	if err := scoped.Session(&gorm.Session{}).
		Preload("Flags", "is_resolved = ?", false).
		Order("jobs.created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&jobs).Error; err != nil {
		return JobPage{}, fmt.Errorf("store: list jobs: %w", err)
	}
	return JobPage{Jobs: jobs, Total: total, Page: page, PageSize: size}, nil
}

func applyJobFilter(q *gorm.DB, f JobFilter) (*gorm.DB, error) {
	const unresolvedOfType = "EXISTS (SELECT 1 FROM validation_flags vf WHERE vf.job_uid = jobs.job_uid AND vf.flag_type = ? AND vf.is_resolved = ?)"
	const anyUnresolved = "EXISTS (SELECT 1 FROM validation_flags vf WHERE vf.job_uid = jobs.job_uid AND vf.is_resolved = ?)"

	switch f.Filter {
	case FilterMissingNetsuite:
		q = q.Where(unresolvedOfType, models.FlagMissingNetsuiteID, false)
	case FilterPartsNoItems:
		q = q.Where(unresolvedOfType, models.FlagPartsReplacedNoLineItems, false)
	case FilterFlagged:
		q = q.Where(anyUnresolved, false)
	case FilterPassing:
		q = q.Where("NOT "+anyUnresolved, false)
	}

	from, to, err := dateBounds(f)
	if err != nil {
		return nil, err
	}
	if from != "" {
		q = q.Where(effectiveDate+" >= ?", from)
	}
	if to != "" {
		q = q.Where(effectiveDate+" < ?", to)
	}

	if v := strings.TrimSpace(f.Organization); v != "" {
		q = q.Where("jobs.organization_name LIKE ? ESCAPE '!'", contains(v))
	}
	if v := strings.TrimSpace(f.ServiceTeam); v != "" {
		q = q.Where("jobs.service_team LIKE ? ESCAPE '!'", contains(v))
	}
	if v := strings.TrimSpace(f.Category); v != "" {
		q = q.Where("jobs.category = ?", v)
	}
	if v := strings.TrimSpace(f.JobNumber); v != "" {
		q = q.Where("jobs.job_number LIKE ? ESCAPE '!'", contains(v))
	}
	if v := strings.TrimSpace(f.Asset); v != "" {
		q = q.Where("jobs.asset_name = ?", v)
	}
	if v := strings.TrimSpace(f.PartSearch); v != "" {
		like := contains(v)
		q = q.Where(`(EXISTS (SELECT 1 FROM job_line_items li WHERE li.job_uid = jobs.job_uid AND (li.name LIKE ? ESCAPE '!' OR li.code LIKE ? ESCAPE '!'))
			OR EXISTS (SELECT 1 FROM job_checklist_text ct WHERE ct.job_uid = jobs.job_uid AND ct.answer LIKE ? ESCAPE '!'))`,
			like, like, like)
	}
	if v := strings.TrimSpace(f.SerialSearch); v != "" {
		forms := serialForms(v)
		q = q.Where(`(EXISTS (SELECT 1 FROM job_line_items li WHERE li.job_uid = jobs.job_uid AND (`+serialMatch("li.serials")+`))
			OR EXISTS (SELECT 1 FROM job_checklist_parts cp WHERE cp.job_uid = jobs.job_uid AND (`+serialMatch("cp.serial")+`)))`,
			forms[0], forms[1], forms[2], forms[0], forms[1], forms[2])
	}
	return q, nil
}

// dateBounds converts the month or date range in f into a half-open string
// range over ISO-8601 timestamps. A date range takes precedence over month.
func dateBounds(f JobFilter) (from, to string, err error) {
	const day = "2006-01-02"
	if f.DateFrom != "" || f.DateTo != "" {
		if f.DateFrom != "" {
			d, err := time.Parse(day, f.DateFrom)
			if err != nil {
				return "", "", fmt.Errorf("%w: date_from %q", ErrInvalidFilter, f.DateFrom)
			}
			from = d.Format(day)
		}
		if f.DateTo != "" {
			d, err := time.Parse(day, f.DateTo)
			if err != nil {
				return "", "", fmt.Errorf("%w: date_to %q", ErrInvalidFilter, f.DateTo)
			}
			to = d.AddDate(0, 0, 1).Format(day)
		}
		return from, to, nil
	}
	if f.Month != "" {
		m, err := time.Parse("2006-01", f.Month)
		if err != nil {
			return "", "", fmt.Errorf("%w: month %q", ErrInvalidFilter, f.Month)
		}
		return m.Format(day), m.AddDate(0, 1, 0).Format(day), nil
	}
	return "", "", nil
}

// serialForms returns LIKE patterns for a serial as typed, in canonical
// dashed form and compacted.
func serialForms(term string) [3]string {
	return [3]string{contains(term), contains(serial.Normalize(term)), contains(serial.Compact(term))}
}

func serialMatch(col string) string {
	return col + " LIKE ? ESCAPE '!' OR " + col + " LIKE ? ESCAPE '!' OR " + col + " LIKE ? ESCAPE '!'"
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func contains(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// GetJob loads one job with all of its child rows. It returns nil, nil when
// the job does not exist.
func (s *Store) GetJob(ctx context.Context, uid string) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		Preload("ChecklistParts").
		Preload("CustomFields").
		Preload("Flags", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("job_uid = ?", uid).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job %s: %w", uid, err)
	}
	return &job, nil
}

// PartMatches lists where term matched inside one job's line items and
// checklist answers.
type PartMatches struct {
	LineItems  []models.LineItem
	Checklists []models.ChecklistAnswer
}

// FindPartMatches returns the rows of job uid that match a part search term.
func (s *Store) FindPartMatches(ctx context.Context, uid, term string) (PartMatches, error) {
	var out PartMatches
	term = strings.TrimSpace(term)
	if term == "" {
		return out, nil
	}
	like := contains(term)
	db := s.db.WithContext(ctx)
	if err := db.Where("job_uid = ? AND (name LIKE ? ESCAPE '!' OR code LIKE ? ESCAPE '!')", uid, like, like).
		Order("id").Find(&out.LineItems).Error; err != nil {
		return out, fmt.Errorf("store: part matches in line items: %w", err)
	}
	if err := db.Where("job_uid = ? AND answer LIKE ? ESCAPE '!'", uid, like).
		Order("id").Find(&out.Checklists).Error; err != nil {
		return out, fmt.Errorf("store: part matches in checklists: %w", err)
	}
	return out, nil
}

// Metrics summarises the current validation state.
type Metrics struct {
	TotalJobs          int64
	MissingNetsuite    int64
	PartsNoLineItems   int64
	FlaggedJobs        int64
	PassingJobs        int64
	ResolvedFlags      int64
	UnresolvedFlags    int64
	JobsWithLineItems  int64
	JobsWithChecklists int64
}

// Metrics counts jobs per unresolved flag type and jobs with no unresolved
// flags at all.
func (s *Store) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Job{}).Count(&m.TotalJobs).Error; err != nil {
		return m, fmt.Errorf("store: metrics total: %w", err)
	}
	jobsWithFlag := func(flagType string, dst *int64) error {
		q := db.Model(&models.ValidationFlag{}).Where("is_resolved = ?", false)
		if flagType != "" {
			q = q.Where("flag_type = ?", flagType)
		}
		return q.Distinct("job_uid").Count(dst).Error
	}
	if err := jobsWithFlag(models.FlagMissingNetsuiteID, &m.MissingNetsuite); err != nil {
		return m, fmt.Errorf("store: metrics missing netsuite: %w", err)
	}
	if err := jobsWithFlag(models.FlagPartsReplacedNoLineItems, &m.PartsNoLineItems); err != nil {
		return m, fmt.Errorf("store: metrics parts without line items: %w", err)
	}
	if err := jobsWithFlag("", &m.FlaggedJobs); err != nil {
		return m, fmt.Errorf("store: metrics flagged: %w", err)
	}
	m.PassingJobs = m.TotalJobs - m.FlaggedJobs

	if err := db.Model(&models.ValidationFlag{}).Where("is_resolved = ?", true).Count(&m.ResolvedFlags).Error; err != nil {
		return m, fmt.Errorf("store: metrics resolved: %w", err)
	}
	if err := db.Model(&models.ValidationFlag{}).Where("is_resolved = ?", false).Count(&m.UnresolvedFlags).Error; err != nil {
		return m, fmt.Errorf("store: metrics unresolved: %w", err)
	}
	if err := db.Model(&models.Job{}).Where("has_line_items = ?", true).Count(&m.JobsWithLineItems).Error; err != nil {
		return m, fmt.Errorf("store: metrics line items: %w", err)
	}
	if err := db.Model(&models.Job{}).Where("has_checklist_parts = ?", true).Count(&m.JobsWithChecklists).Error; err != nil {
		return m, fmt.Errorf("store: metrics checklists: %w", err)
	}
	return m, nil
}

// MarkJobResolved resolves every open flag on a job and returns how many
// flags changed.
func (s *Store) MarkJobResolved(ctx context.Context, uid string) (int64, error) {
	now := s.now().UTC()
	r := s.db.WithContext(ctx).Model(&models.ValidationFlag{}).
		Where("job_uid = ? AND is_resolved = ?", uid, false).
		Updates(map[string]interface{}{"is_resolved": true, "resolved_at": now})
	if r.Error != nil {
		return 0, fmt.Errorf("store: resolve job %s: %w", uid, r.Error)
	}
	return r.RowsAffected, nil
}

// SerialMatch is one job hit for a searched serial.
type SerialMatch struct {
	SearchedSerial   string
	Normalized       string
	JobUID           string
	JobNumber        string
	Title            string
	OrganizationName string
	AssetName        string
	ServiceTeam      *string
	CreatedAt        string
	MatchedIn        []string
}

// Match sources reported in SerialMatch.MatchedIn.
const (
	MatchLineItem  = "line_item"
	MatchChecklist = "checklist"
)

// SearchSerials looks up each term in line item serials and checklist-mined
// serials. Terms match as typed, in canonical form or compacted. Terms with
// no hits produce no rows.
func (s *Store) SearchSerials(ctx context.Context, terms []string) ([]SerialMatch, error) {
	db := s.db.WithContext(ctx)
	var out []SerialMatch
	seenTerm := map[string]bool{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" || seenTerm[term] {
			continue
		}
		seenTerm[term] = true
		norm := serial.Normalize(term)
		forms := serialForms(term)

		var itemUIDs, partUIDs []string
		if err := db.Model(&models.LineItem{}).
			Where(serialMatch("serials"), forms[0], forms[1], forms[2]).
			Distinct().Pluck("job_uid", &itemUIDs).Error; err != nil {
			return nil, fmt.Errorf("store: serial search %q in line items: %w", term, err)
		}
		if err := db.Model(&models.ChecklistPart{}).
			Where(serialMatch("serial"), forms[0], forms[1], forms[2]).
			Distinct().Pluck("job_uid", &partUIDs).Error; err != nil {
			return nil, fmt.Errorf("store: serial search %q in checklists: %w", term, err)
		}

		sources := map[string][]string{}
		var uids []string
		for _, u := range itemUIDs {
			if _, ok := sources[u]; !ok {
				uids = append(uids, u)
			}
			sources[u] = append(sources[u], MatchLineItem)
		}
		for _, u := range partUIDs {
			if _, ok := sources[u]; !ok {
				uids = append(uids, u)
			}
			sources[u] = append(sources[u], MatchChecklist)
		}
		if len(uids) == 0 {
			continue
		}

		var jobs []models.Job
		if err := db.Where("job_uid IN ?", uids).Order("created_at DESC").Find(&jobs).Error; err != nil {
			return nil, fmt.Errorf("store: serial search %q jobs: %w", term, err)
		}
		for _, j := range jobs {
			out = append(out, SerialMatch{
				SearchedSerial:   term,
				Normalized:       norm,
				JobUID:           j.JobUID,
				JobNumber:        j.JobNumber,
				Title:            j.Title,
				OrganizationName: j.OrganizationName,
				AssetName:        j.AssetName,
				ServiceTeam:      j.ServiceTeam,
				CreatedAt:        j.CreatedAt,
				MatchedIn:        sources[j.JobUID],
			})
		}
	}
	return out, nil
}

// FilterOptions lists the distinct values the dashboard offers as filters.
type FilterOptions struct {
	Organizations []string
	ServiceTeams  []string
	Categories    []string
	Months        []string
}

// FilterOptions returns distinct organizations, teams, categories and months.
func (s *Store) FilterOptions(ctx context.Context) (FilterOptions, error) {
	var fo FilterOptions
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Job{}).Where("organization_name <> ''").
		Distinct().Order("organization_name").Pluck("organization_name", &fo.Organizations).Error; err != nil {
		return fo, fmt.Errorf("store: organizations: %w", err)
	}
	if err := db.Model(&models.Job{}).Where("service_team IS NOT NULL AND service_team <> ''").
		Distinct().Order("service_team").Pluck("service_team", &fo.ServiceTeams).Error; err != nil {
		return fo, fmt.Errorf("store: service teams: %w", err)
	}
	if err := db.Model(&models.Job{}).Where("category <> ''").
		Distinct().Order("category").Pluck("category", &fo.Categories).Error; err != nil {
		return fo, fmt.Errorf("store: categories: %w", err)
	}
	if err := db.Raw("SELECT DISTINCT SUBSTR(" + effectiveDate + ", 1, 7) AS month FROM jobs WHERE " +
		effectiveDate + " <> '' ORDER BY month DESC").Scan(&fo.Months).Error; err != nil {
		return fo, fmt.Errorf("store: months: %w", err)
	}
	return fo, nil
}

// AssetRow is a per-asset job tally.
type AssetRow struct {
	AssetName      string
	TotalJobs      int64
	JobsWithIssues int64
}

// AssetsWithCounts returns each asset with its job count and the number of
// those jobs holding an unresolved flag, busiest first.
func (s *Store) AssetsWithCounts(ctx context.Context) ([]AssetRow, error) {
	var rows []AssetRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT j.asset_name AS asset_name,
			COUNT(DISTINCT j.job_uid) AS total_jobs,
			COUNT(DISTINCT CASE WHEN vf.id IS NOT NULL THEN j.job_uid END) AS jobs_with_issues
		FROM jobs j
		LEFT JOIN validation_flags vf ON vf.job_uid = j.job_uid AND vf.is_resolved = ?
		WHERE j.asset_name <> ''
		GROUP BY j.asset_name
		ORDER BY total_jobs DESC, j.asset_name`, false).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: assets with counts: %w", err)
	}
	return rows, nil
}

// CategoryRow is a per-category job tally.
type CategoryRow struct {
	Category       string
	TotalJobs      int64
	JobsWithIssues int64
}

// CategoryReport tallies jobs and flagged jobs per category.
func (s *Store) CategoryReport(ctx context.Context) ([]CategoryRow, error) {
	var rows []CategoryRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT j.category AS category,
			COUNT(DISTINCT j.job_uid) AS total_jobs,
			COUNT(DISTINCT CASE WHEN vf.id IS NOT NULL THEN j.job_uid END) AS jobs_with_issues
		FROM jobs j
		LEFT JOIN validation_flags vf ON vf.job_uid = j.job_uid AND vf.is_resolved = ?
		GROUP BY j.category
		ORDER BY total_jobs DESC, j.category`, false).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: category report: %w", err)
	}
	return rows, nil
}

// LastCompletedSync returns the latest completed sync run, or nil if none.
func (s *Store) LastCompletedSync(ctx context.Context) (*models.SyncLog, error) {
	var logs []models.SyncLog
	if err := s.db.WithContext(ctx).Where("status = ?", models.SyncCompleted).
		Order("completed_at DESC").Limit(1).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("store: last sync: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// RecentSyncRuns returns up to limit sync runs, newest first.
func (s *Store) RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []models.SyncLog
	if err := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").
		Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("store: recent sync runs: %w", err)
	}
	return logs, nil
}

// TableCounts is the row count of every table.
type TableCounts struct {
	Jobs             int64
	LineItems        int64
	ChecklistParts   int64
	ChecklistAnswers int64
	CustomFields     int64
	Flags            int64
	Organizations    int64
	SyncRuns         int64
	Notifications    int64
}

// Counts returns row counts for every table.
func (s *Store) Counts(ctx context.Context) (TableCounts, error) {
	var c TableCounts
	db := s.db.WithContext(ctx)
	for _, t := range []struct {
		model interface{}
		dst   *int64
	}{
		{&models.Job{}, &c.Jobs},
		{&models.LineItem{}, &c.LineItems},
		{&models.ChecklistPart{}, &c.ChecklistParts},
		{&models.ChecklistAnswer{}, &c.ChecklistAnswers},
		{&models.CustomField{}, &c.CustomFields},
		{&models.ValidationFlag{}, &c.Flags},
		{&models.Organization{}, &c.Organizations},
		{&models.SyncLog{}, &c.SyncRuns},
		{&models.NotificationLog{}, &c.Notifications},
	} {
		if err := db.Model(t.model).Count(t.dst).Error; err != nil {
			return c, fmt.Errorf("store: count %T: %w", t.model, err)
		}
	}
	return c, nil
}
