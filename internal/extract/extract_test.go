package extract

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zulandar/jobvalidator/internal/zuper"
)

func decode(t *testing.T, raw string) *zuper.Job {
	t.Helper()
	var j zuper.Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &j
}

func strp(s string) *string { return &s }

func deref(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

const sampleJob = `{
	"job_uid": "j-1",
	"job_number": 77,
	"work_order_number": "WO-77",
	"job_title": "Scanner swap",
	"customer_name": "Farm Co",
	"customer": {"customer_organization": {"organization_uid": "org-9", "organization_name": "Farm Co LLC"}},
	"job_category": [{"category_name": "LaserWeeder Service Call"}],
	"created_at": "2025-06-01T08:00:00Z",
	"updated_at": "2025-06-03T08:00:00Z",
	"assets": [{"asset": {"asset_code": "S38", "asset_name": "Slayer 38"}}, {"asset": {"asset_code": "S39"}}],
	"products": [
		{"product_name": "Scanner", "product_id": "P-1", "serial_nos": ["CR-SM-000571", "CR-SM-000572"], "quantity": 2, "price": "150.50", "product_type": "PRODUCT"},
		{"product_name": "Shop supplies", "product_id": "P-2"}
	],
	"job_status": [
		{"status_name": "New", "status_type": "NEW", "updated_at": "2025-06-01T08:00:00Z", "done_by": {"user_uid": "u-admin"}},
		{"status_name": "Started", "status_type": "STARTED", "updated_at": "2025-06-02T08:00:00Z", "done_by": {"user_uid": "u-tech"},
		 "checklist": [
			{"question": "Parts replaced?", "answer": "removed CR-SM-000571 installed crsm000572rw"},
			{"question": "Notes", "answer": "  "},
			{"question": "Wheel", "answer": "replaced left wheel"}
		 ]},
		{"status_name": "Completed", "status_type": "COMPLETED", "updated_at": "2025-06-02T17:00:00Z", "done_by": {"user_uid": "u-tech"}}
	],
	"assigned_to": [
		{"user": {"user_uid": "u-admin"}, "team": {"team_name": "Office"}},
		{"user": {"user_uid": "u-tech"}, "team": {"team_name": "Field West"}}
	],
	"assigned_to_team": [{"team": {"team_name": "Primary"}}],
	"custom_fields": [
		{"label": "Jira Ticket", "value": "https://jira.example.com/FS-1", "type": "TEXT"},
		{"label": "NetSuite Sales Order", "value": "  SO-5521 ", "type": "TEXT"},
		{"label": "Slack Thread", "value": "", "type": "TEXT"}
	]
}`

func TestExtract_Sample(t *testing.T) {
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	rec := Extract(decode(t, sampleJob), now)
	j := rec.Job

	if j.JobUID != "j-1" || j.JobNumber != "WO-77" || j.Title != "Scanner swap" {
		t.Errorf("identity = %q %q %q", j.JobUID, j.JobNumber, j.Title)
	}
	if j.Category != "LaserWeeder Service Call" {
		t.Errorf("Category = %q", j.Category)
	}
	if j.OrganizationUID != "org-9" || j.OrganizationName != "Farm Co LLC" {
		t.Errorf("organization = %q %q", j.OrganizationUID, j.OrganizationName)
	}
	if deref(j.ServiceTeam) != "Field West" {
		t.Errorf("ServiceTeam = %s, want Field West", deref(j.ServiceTeam))
	}
	if j.AssetName != "S38" {
		t.Errorf("AssetName = %q, want S38", j.AssetName)
	}
	if deref(j.CompletedAt) != "2025-06-02T17:00:00Z" {
		t.Errorf("CompletedAt = %s", deref(j.CompletedAt))
	}
	if !j.HasLineItems || !j.HasChecklistParts || !j.HasNetsuiteID {
		t.Errorf("derived booleans = %v %v %v", j.HasLineItems, j.HasChecklistParts, j.HasNetsuiteID)
	}
	if deref(j.NetsuiteID) != "SO-5521" {
		t.Errorf("NetsuiteID = %s", deref(j.NetsuiteID))
	}
	if deref(j.JiraLink) != "https://jira.example.com/FS-1" {
		t.Errorf("JiraLink = %s", deref(j.JiraLink))
	}
	if j.SlackLink != nil {
		t.Errorf("SlackLink = %s, want nil for blank value", deref(j.SlackLink))
	}
	if j.Status != "New" {
		t.Errorf("Status = %q, want first history entry", j.Status)
	}
	if !j.SyncedAt.Equal(now) {
		t.Errorf("SyncedAt = %v", j.SyncedAt)
	}
	if rec.Organization == nil || rec.Organization.Name != "Farm Co LLC" {
		t.Errorf("Organization = %+v", rec.Organization)
	}
	if len(rec.CustomFields) != 3 {
		t.Errorf("len(CustomFields) = %d, want 3", len(rec.CustomFields))
	}
	if len(rec.ChecklistAnswers) != 2 {
		t.Errorf("len(ChecklistAnswers) = %d, want 2 (blank skipped)", len(rec.ChecklistAnswers))
	}
}

func TestLineItems(t *testing.T) {
	items := LineItems(decode(t, sampleJob))
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	first := items[0]
	if first.JobUID != "j-1" || first.Name != "Scanner" || first.Code != "P-1" || first.Type != "PRODUCT" {
		t.Errorf("first = %+v", first)
	}
	if first.Serials != "CR-SM-000571, CR-SM-000572" {
		t.Errorf("Serials = %q", first.Serials)
	}
	if !first.Quantity.Equal(decimal.NewFromInt(2)) || !first.Price.Equal(decimal.RequireFromString("150.5")) {
		t.Errorf("quantity/price = %s/%s", first.Quantity, first.Price)
	}
	second := items[1]
	if !second.Quantity.Equal(decimal.NewFromInt(1)) || !second.Price.IsZero() || second.Serials != "" {
		t.Errorf("defaults = %+v", second)
	}
}

func TestLineItems_Missing(t *testing.T) {
	items := LineItems(decode(t, `{"job_uid":"x"}`))
	if items == nil || len(items) != 0 {
		t.Errorf("LineItems = %#v, want empty slice", items)
	}
}

func TestChecklistParts(t *testing.T) {
	parts := ChecklistParts(decode(t, sampleJob))
	if len(parts) != 2 {
		t.Fatalf("len = %d, want 2", len(parts))
	}
	if parts[0].Serial != "CR-SM-000571" || parts[1].Serial != "CR-SM-000572-RW" {
		t.Errorf("serials = %q, %q", parts[0].Serial, parts[1].Serial)
	}
	for _, p := range parts {
		if p.Question != "Parts replaced?" || p.StatusName != "Started" || p.JobUID != "j-1" {
			t.Errorf("provenance = %+v", p)
		}
	}
}

func TestChecklistParts_TruncatesAnswer(t *testing.T) {
	long := "CR-SM-000571 " + strings.Repeat("é", 300)
	job := &zuper.Job{JobUID: "j", Statuses: []zuper.Status{{Checklist: []zuper.ChecklistItem{{Answer: zuper.FlexString(long)}}}}}
	parts := ChecklistParts(job)
	if len(parts) != 1 {
		t.Fatalf("len = %d, want 1", len(parts))
	}
	if n := len([]rune(parts[0].Answer)); n != 200 {
		t.Errorf("answer runes = %d, want 200", n)
	}
}

func TestChecklistParts_Empty(t *testing.T) {
	parts := ChecklistParts(&zuper.Job{})
	if parts == nil || len(parts) != 0 {
		t.Errorf("ChecklistParts = %#v, want empty slice", parts)
	}
}

func TestNetsuiteID(t *testing.T) {
	tests := []struct {
		name   string
		fields []zuper.CustomField
		want   *string
	}{
		{"none", nil, nil},
		{"netsuite label", []zuper.CustomField{{Label: "NetSuite ID", Value: "123"}}, strp("123")},
		{"sales order label", []zuper.CustomField{{Label: "Sales Order #", Value: "SO-1"}}, strp("SO-1")},
		{"so id label", []zuper.CustomField{{Label: "SO ID", Value: "9"}}, strp("9")},
		{"salesorder label", []zuper.CustomField{{Label: "salesorder", Value: "x"}}, strp("x")},
		{"blank skipped", []zuper.CustomField{{Label: "NetSuite", Value: "  "}, {Label: "Sales Order", Value: "SO-2"}}, strp("SO-2")},
		{"first wins", []zuper.CustomField{{Label: "NetSuite", Value: "A"}, {Label: "Sales Order", Value: "B"}}, strp("A")},
		{"unrelated label", []zuper.CustomField{{Label: "Purchase Order", Value: "PO-1"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NetsuiteID(&zuper.Job{CustomFields: tt.fields})
			if deref(got) != deref(tt.want) {
				t.Errorf("NetsuiteID = %s, want %s", deref(got), deref(tt.want))
			}
		})
	}
}

func TestAssetName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"code", `{"assets":[{"asset":{"asset_code":"S38","asset_name":"n"}}]}`, "S38"},
		{"name fallback", `{"assets":[{"asset":{"asset_name":"Slayer"}}]}`, "Slayer"},
		{"object form", `{"assets":{"asset":{"asset_code":"S1"}}}`, "S1"},
		{"nil asset", `{"assets":[{"asset":null}]}`, ""},
		{"empty list", `{"assets":[]}`, ""},
		{"missing", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssetName(decode(t, tt.raw)); got != tt.want {
				t.Errorf("AssetName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceTeam(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{
			name: "latest non-new done_by",
			raw: `{"job_status":[{"status_type":"STARTED","done_by":{"user_uid":"a"}},{"status_type":"COMPLETED","done_by":{"user_uid":"b"}}],
				"assigned_to":[{"user":{"user_uid":"a"},"team":{"team_name":"A"}},{"user":{"user_uid":"b"},"team":{"team_name":"B"}}]}`,
			want: strp("B"),
		},
		{
			name: "new status ignored",
			raw: `{"job_status":[{"status_type":"STARTED","done_by":{"user_uid":"a"}},{"status_type":"NEW","done_by":{"user_uid":"b"}}],
				"assigned_to":[{"user":{"user_uid":"a"},"team":{"team_name":"A"}},{"user":{"user_uid":"b"},"team":{"team_name":"B"}}]}`,
			want: strp("A"),
		},
		{
			name: "older status used when newest user has no team",
			raw: `{"job_status":[{"status_type":"STARTED","done_by":{"user_uid":"a"}},{"status_type":"COMPLETED","done_by":{"user_uid":"ghost"}}],
				"assigned_to":[{"user":{"user_uid":"a"},"team":{"team_name":"A"}}]}`,
			want: strp("A"),
		},
		{
			name: "fallback to assigned team",
			raw:  `{"job_status":[{"status_type":"COMPLETED"}],"assigned_to_team":[{"team":{"team_name":"Primary"}},{"team":{"team_name":"Second"}}]}`,
			want: strp("Primary"),
		},
		{
			name: "nothing",
			raw:  `{}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ServiceTeam(decode(t, tt.raw))
			if deref(got) != deref(tt.want) {
				t.Errorf("ServiceTeam = %s, want %s", deref(got), deref(tt.want))
			}
		})
	}
}

func TestCompletionDate(t *testing.T) {
	job := decode(t, `{"job_status":[
		{"status_type":"COMPLETED","updated_at":"t1"},
		{"status_type":"STARTED","updated_at":"t2"},
		{"status_type":"CLOSED","updated_at":"t3"},
		{"status_type":"ON_HOLD","updated_at":"t4"}]}`)
	if got := CompletionDate(job); deref(got) != "t3" {
		t.Errorf("CompletionDate = %s, want t3", deref(got))
	}
	if got := CompletionDate(&zuper.Job{}); got != nil {
		t.Errorf("CompletionDate on empty = %s, want nil", *got)
	}
}

func TestCategory(t *testing.T) {
	if got := Category(decode(t, `{"job_category":{"category_name":"WM Repair - In Shop"}}`)); got != "WM Repair - In Shop" {
		t.Errorf("object form = %q", got)
	}
	if got := Category(decode(t, `{"job_category":[{"category_name":"A"},{"category_name":"B"}]}`)); got != "A" {
		t.Errorf("list form = %q", got)
	}
	if got := Category(&zuper.Job{}); got != "" {
		t.Errorf("missing = %q", got)
	}
}

func TestCurrentStatus_PrefersCurrentField(t *testing.T) {
	job := decode(t, `{"current_job_status":{"status_name":"Completed"},"job_status":[{"status_name":"New"}]}`)
	if got := CurrentStatus(job); got != "Completed" {
		t.Errorf("CurrentStatus = %q, want Completed", got)
	}
}

func TestOrganization_Missing(t *testing.T) {
	if Organization(decode(t, `{"customer":{}}`)) != nil {
		t.Error("expected nil organization")
	}
}
