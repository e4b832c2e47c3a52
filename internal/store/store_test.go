package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zulandar/jobvalidator/internal/config"
	"github.com/zulandar/jobvalidator/internal/db"
	"github.com/zulandar/jobvalidator/internal/models"
	"github.com/zulandar/jobvalidator/internal/validate"
)

var syncTime = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "jobs.db")})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	s := New(gdb, nil)
	s.now = func() time.Time { return syncTime.Add(time.Hour) }
	return s
}

var rules = validate.Rules{
	SkipCategories:  []string{"Internal"},
	ConsumableTerms: []string{"consumable", "filter"},
}

func strp(s string) *string { return &s }

type jobSpec struct {
	uid, number, category, org, team, asset, created string
	completed                                        *string
	items                                            []string
	serials                                          string
	parts                                            []string
	answer                                           string
	netsuite                                         *string
}

func makeBundle(js jobSpec) Bundle {
	b := Bundle{
		Job: models.Job{
			JobUID:           js.uid,
			JobNumber:        js.number,
			Title:            "Service visit " + js.number,
			Category:         js.category,
			OrganizationUID:  "org-" + strings.ToLower(strings.ReplaceAll(js.org, " ", "-")),
			OrganizationName: js.org,
			AssetName:        js.asset,
			CreatedAt:        js.created,
			UpdatedAt:        js.created,
			CompletedAt:      js.completed,
			NetsuiteID:       js.netsuite,
			HasNetsuiteID:    js.netsuite != nil,
			SyncedAt:         syncTime,
		},
	}
	if js.team != "" {
		b.Job.ServiceTeam = strp(js.team)
	}
	if js.org != "" {
		b.Organization = &models.Organization{OrganizationUID: b.Job.OrganizationUID, Name: js.org}
	}
	for i, name := range js.items {
		it := models.LineItem{Name: name, Code: "P-" + name, Quantity: decimal.NewFromInt(1), Price: decimal.Zero}
		if i == 0 {
			it.Serials = js.serials
		}
		b.LineItems = append(b.LineItems, it)
	}
	for _, sn := range js.parts {
		b.ChecklistParts = append(b.ChecklistParts, models.ChecklistPart{Serial: sn, Question: "Parts replaced?", Answer: js.answer})
	}
	if js.answer != "" {
		b.ChecklistAnswers = []models.ChecklistAnswer{{Question: "Parts replaced?", Answer: js.answer}}
	}
	b.CustomFields = []models.CustomField{{Label: "Region", Value: "West", Type: "SINGLE_LINE"}}
	b.Job.HasLineItems = len(b.LineItems) > 0
	b.Job.HasChecklistParts = len(b.ChecklistParts) > 0
	b.Flags = rules.Evaluate(js.category, b.LineItems, b.ChecklistParts, js.netsuite)
	return b
}

func fixture() []Bundle {
	return []Bundle{
		makeBundle(jobSpec{
			uid: "job-1", number: "1001", category: "Field Service", org: "Acme Farms", team: "West Crew",
			asset: "Slayer 12", created: "2025-06-01T08:00:00Z", completed: strp("2025-06-02T17:00:00Z"),
			items: []string{"Scanner Module"}, serials: "CRSM000571",
		}),
		makeBundle(jobSpec{
			uid: "job-2", number: "1002", category: "Field Service", org: "Beta Growers", team: "East Crew",
			asset: "Slayer 7", created: "2025-05-20T08:00:00Z",
			parts: []string{"CR-LM-123456"}, answer: "Replaced laser CR-LM-123456 and belt",
		}),
		makeBundle(jobSpec{
			uid: "job-3", number: "1003", category: "Field Service", org: "Acme Farms", team: "West Crew",
			asset: "Slayer 12", created: "2025-06-05T08:00:00Z", completed: strp("2025-07-01T09:00:00Z"),
			items: []string{"Power Supply"}, netsuite: strp("SO-77"),
		}),
		makeBundle(jobSpec{
			uid: "job-4", number: "1004", category: "Internal", org: "Acme Farms",
			created: "2025-06-07T08:00:00Z", items: []string{"Scanner Module"},
		}),
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	if _, err := s.SaveBatch(context.Background(), fixture()); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
}

func TestSaveBatch_WritesEverything(t *testing.T) {
	s := openStore(t)
	res, err := s.SaveBatch(context.Background(), fixture())
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if res.Jobs != 4 {
		t.Errorf("Jobs = %d, want 4", res.Jobs)
	}
	if res.FlagsCreated != 2 {
		t.Errorf("FlagsCreated = %d, want 2", res.FlagsCreated)
	}
	if res.FlagsByType[models.FlagMissingNetsuiteID] != 1 || res.FlagsByType[models.FlagPartsReplacedNoLineItems] != 1 {
		t.Errorf("FlagsByType = %v", res.FlagsByType)
	}
	if res.OrganizationsSet != 2 {
		t.Errorf("OrganizationsSet = %d, want 2", res.OrganizationsSet)
	}

	c, err := s.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := TableCounts{Jobs: 4, LineItems: 3, ChecklistParts: 1, ChecklistAnswers: 1, CustomFields: 4, Flags: 2, Organizations: 2}
	if c != want {
		t.Errorf("Counts = %+v, want %+v", c, want)
	}
}

func TestSaveBatch_Idempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seed(t, s)
	first, _ := s.Counts(ctx)
	seed(t, s)
	second, _ := s.Counts(ctx)
	if first != second {
		t.Errorf("counts changed on resave: %+v -> %+v", first, second)
	}
}

func TestSaveBatch_ReplacesChildren(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seed(t, s)

	b := makeBundle(jobSpec{
		uid: "job-1", number: "1001", category: "Field Service", org: "Acme Farms",
		created: "2025-06-01T08:00:00Z", items: []string{"Scanner Module", "Laser Module"}, netsuite: strp("SO-1"),
	})
	if _, err := s.SaveJob(ctx, b); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	job, err := s.GetJob(ctx, "job-1")
	if err != nil || job == nil {
		t.Fatalf("GetJob: %v %v", job, err)
	}
	if len(job.LineItems) != 2 {
		t.Errorf("line items = %d, want 2", len(job.LineItems))
	}
	if len(job.Flags) != 0 {
		t.Errorf("flags = %d, want 0 after netsuite id was added", len(job.Flags))
	}
	if job.NetsuiteID == nil || *job.NetsuiteID != "SO-1" {
		t.Errorf("NetsuiteID = %v", job.NetsuiteID)
	}
	if job.ServiceTeam != nil {
		t.Errorf("ServiceTeam = %q, want cleared", *job.ServiceTeam)
	}
}

func TestSaveBatch_DuplicateUIDKeepsLast(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	a := makeBundle(jobSpec{uid: "dup", number: "1", category: "Field Service", created: "2025-06-01T00:00:00Z"})
	b := makeBundle(jobSpec{uid: "dup", number: "2", category: "Field Service", created: "2025-06-01T00:00:00Z"})
	res, err := s.SaveBatch(ctx, []Bundle{a, b})
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if res.Jobs != 1 {
		t.Errorf("Jobs = %d, want 1", res.Jobs)
	}
	job, _ := s.GetJob(ctx, "dup")
	if job == nil || job.JobNumber != "2" {
		t.Errorf("job = %+v, want number 2", job)
	}
}

func TestSaveBatch_Empty(t *testing.T) {
	s := openStore(t)
	res, err := s.SaveBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if res.Jobs != 0 {
		t.Errorf("Jobs = %d", res.Jobs)
	}
}

func TestSaveBatch_KeepsResolutionForUnchangedFlag(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seed(t, s)

	n, err := s.MarkJobResolved(ctx, "job-1")
	if err != nil {
		t.Fatalf("MarkJobResolved: %v", err)
	}
	if n != 1 {
		t.Fatalf("resolved %d flags, want 1", n)
	}

	res, err := s.SaveBatch(ctx, fixture())
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if res.ResolutionsKept != 1 {
		t.Errorf("ResolutionsKept = %d, want 1", res.ResolutionsKept)
	}
	job, _ := s.GetJob(ctx, "job-1")
	if len(job.Flags) != 1 || !job.Flags[0].IsResolved || job.Flags[0].ResolvedAt == nil {
		t.Errorf("flags after resync = %+v, want one resolved flag", job.Flags)
	}
}

func TestSaveBatch_ReopensChangedFlag(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seed(t, s)
	if _, err := s.MarkJobResolved(ctx, "job-1"); err != nil {
		t.Fatalf("MarkJobResolved: %v", err)
	}

	b := makeBundle(jobSpec{
		uid: "job-1", number: "1001", category: "Field Service", org: "Acme Farms",
		created: "2025-06-01T08:00:00Z", items: []string{"Scanner Module", "Laser Module"},
	})
	res, err := s.SaveJob(ctx, b)
	if err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	if res.ResolutionsKept != 0 {
		t.Errorf("ResolutionsKept = %d, want 0", res.ResolutionsKept)
	}
	job, _ := s.GetJob(ctx, "job-1")
	if len(job.Flags) != 1 || job.Flags[0].IsResolved {
		t.Errorf("flags = %+v, want one unresolved flag", job.Flags)
	}
}

func TestDeleteJobsOutsideCategories(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seed(t, s)

	n, err := s.DeleteJobsOutsideCategories(ctx, []string{"Field Service"})
	if err != nil {
		t.Fatalf("DeleteJobsOutsideCategories: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	job, err := s.GetJob(ctx, "job-4")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job != nil {
		t.Error("job-4 still present")
	}
	var orphans int64
	s.DB().Model(&models.LineItem{}).Where("job_uid = ?", "job-4").Count(&orphans)
	if orphans != 0 {
		t.Errorf("%d orphan line items", orphans)
	}
}

func TestDeleteJobsOutsideCategories_EmptyAllowlist(t *testing.T) {
	s := openStore(t)
	if _, err := s.DeleteJobsOutsideCategories(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty allowlist")
	}
}

func TestLastSyncedAt(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if _, ok, err := s.LastSyncedAt(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	seed(t, s)
	later := makeBundle(jobSpec{uid: "job-9", number: "9", category: "Field Service", created: "2025-06-09T00:00:00Z"})
	later.Job.SyncedAt = syncTime.Add(24 * time.Hour)
	if _, err := s.SaveJob(ctx, later); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	got, ok, err := s.LastSyncedAt(ctx)
	if err != nil || !ok {
		t.Fatalf("LastSyncedAt: ok=%v err=%v", ok, err)
	}
	if !got.Equal(later.Job.SyncedAt) {
		t.Errorf("LastSyncedAt = %v, want %v", got, later.Job.SyncedAt)
	}
}

func TestSyncLogLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	entry, err := s.StartSyncLog(ctx, "run-1", "full", syncTime)
	if err != nil {
		t.Fatalf("StartSyncLog: %v", err)
	}
	if entry.Status != models.SyncInProgress {
		t.Errorf("Status = %q", entry.Status)
	}
	if last, _ := s.LastCompletedSync(ctx); last != nil {
		t.Errorf("LastCompletedSync before finish = %+v", last)
	}

	entry.JobsProcessed, entry.JobsFailed, entry.FlagsCreated = 10, 1, 3
	entry.Errors = "job-x: boom"
	if err := s.FinishSyncLog(ctx, entry); err != nil {
		t.Fatalf("FinishSyncLog: %v", err)
	}

	last, err := s.LastCompletedSync(ctx)
	if err != nil || last == nil {
		t.Fatalf("LastCompletedSync: %v %v", last, err)
	}
	if last.RunID != "run-1" || last.JobsProcessed != 10 || last.JobsFailed != 1 || last.Errors != "job-x: boom" {
		t.Errorf("last = %+v", last)
	}
	if last.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	runs, err := s.RecentSyncRuns(ctx, 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentSyncRuns = %v, %v", runs, err)
	}
}
