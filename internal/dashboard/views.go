package dashboard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zulandar/jobvalidator/internal/models"
	"github.com/zulandar/jobvalidator/internal/notify"
	"github.com/zulandar/jobvalidator/internal/store"
)

type jobView struct {
	JobUID            string              `json:"job_uid"`
	JobNumber         string              `json:"job_number"`
	Title             string              `json:"title"`
	Category          string              `json:"category"`
	Status            string              `json:"status"`
	CustomerName      string              `json:"customer_name"`
	OrganizationUID   string              `json:"organization_uid"`
	OrganizationName  string              `json:"organization_name"`
	ServiceTeam       *string             `json:"service_team"`
	AssetName         string              `json:"asset_name"`
	CreatedAt         string              `json:"created_at"`
	UpdatedAt         string              `json:"updated_at"`
	CompletedAt       *string             `json:"completed_at"`
	HasLineItems      bool                `json:"has_line_items"`
	HasChecklistParts bool                `json:"has_checklist_parts"`
	HasNetsuiteID     bool                `json:"has_netsuite_id"`
	NetsuiteID        *string             `json:"netsuite_id"`
	JiraLink          *string             `json:"jira_link"`
	SlackLink         *string             `json:"slack_link"`
	SyncedAt          time.Time           `json:"synced_at"`
	URL               string              `json:"url"`
	Flags             []flagView          `json:"flags"`
	LineItems         []lineItemView      `json:"line_items,omitempty"`
	ChecklistParts    []checklistPartView `json:"checklist_parts,omitempty"`
	CustomFields      []customFieldView   `json:"custom_fields,omitempty"`
}

type flagView struct {
	ID         uint            `json:"id"`
	FlagType   string          `json:"flag_type"`
	Severity   string          `json:"severity"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
	IsResolved bool            `json:"is_resolved"`
	ResolvedAt *time.Time      `json:"resolved_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

type lineItemView struct {
	Name     string          `json:"name"`
	Code     string          `json:"code"`
	Serials  string          `json:"serials"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Type     string          `json:"type"`
}

type checklistPartView struct {
	Serial     string `json:"serial"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	StatusName string `json:"status_name"`
}

type customFieldView struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

func newJobView(j models.Job) jobView {
	v := jobView{
		JobUID:            j.JobUID,
		JobNumber:         j.JobNumber,
		Title:             j.Title,
		Category:          j.Category,
		Status:            j.Status,
		CustomerName:      j.CustomerName,
		OrganizationUID:   j.OrganizationUID,
		OrganizationName:  j.OrganizationName,
		ServiceTeam:       j.ServiceTeam,
		AssetName:         j.AssetName,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
		CompletedAt:       j.CompletedAt,
		HasLineItems:      j.HasLineItems,
		HasChecklistParts: j.HasChecklistParts,
		HasNetsuiteID:     j.HasNetsuiteID,
		NetsuiteID:        j.NetsuiteID,
		JiraLink:          j.JiraLink,
		SlackLink:         j.SlackLink,
		SyncedAt:          j.SyncedAt,
		URL:               fmt.Sprintf(notify.JobURL, j.JobUID),
		Flags:             make([]flagView, 0, len(j.Flags)),
	}
	for _, f := range j.Flags {
		v.Flags = append(v.Flags, flagView{
			ID:         f.ID,
			FlagType:   f.FlagType,
			Severity:   f.Severity,
			Message:    f.Message,
			Details:    json.RawMessage(f.Details),
			IsResolved: f.IsResolved,
			ResolvedAt: f.ResolvedAt,
			CreatedAt:  f.CreatedAt,
		})
	}
	for _, li := range j.LineItems {
		v.LineItems = append(v.LineItems, newLineItemView(li))
	}
	for _, cp := range j.ChecklistParts {
		v.ChecklistParts = append(v.ChecklistParts, checklistPartView{
			Serial: cp.Serial, Question: cp.Question, Answer: cp.Answer, StatusName: cp.StatusName,
		})
	}
	for _, cf := range j.CustomFields {
		v.CustomFields = append(v.CustomFields, customFieldView{Label: cf.Label, Value: cf.Value, Type: cf.Type})
	}
	return v
}

func newLineItemView(li models.LineItem) lineItemView {
	return lineItemView{
		Name: li.Name, Code: li.Code, Serials: li.Serials,
		Quantity: li.Quantity, Price: li.Price, Type: li.Type,
	}
}

type jobPageView struct {
	Jobs       []jobView `json:"jobs"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int64     `json:"total_pages"`
}

func newJobPageView(p store.JobPage) jobPageView {
	v := jobPageView{Jobs: make([]jobView, 0, len(p.Jobs)), Total: p.Total, Page: p.Page, PageSize: p.PageSize}
	for _, j := range p.Jobs {
		v.Jobs = append(v.Jobs, newJobView(j))
	}
	if p.PageSize > 0 {
		v.TotalPages = (p.Total + int64(p.PageSize) - 1) / int64(p.PageSize)
	}
	return v
}

type partMatchesView struct {
	Term       string              `json:"term"`
	LineItems  []lineItemView      `json:"line_items"`
	Checklists []checklistPartView `json:"checklists"`
}

func newPartMatchesView(term string, m store.PartMatches) partMatchesView {
	v := partMatchesView{Term: term, LineItems: []lineItemView{}, Checklists: []checklistPartView{}}
	for _, li := range m.LineItems {
		v.LineItems = append(v.LineItems, newLineItemView(li))
	}
	for _, ca := range m.Checklists {
		v.Checklists = append(v.Checklists, checklistPartView{Question: ca.Question, Answer: ca.Answer, StatusName: ca.StatusName})
	}
	return v
}

type metricsView struct {
	TotalJobs          int64      `json:"total_jobs"`
	MissingNetsuite    int64      `json:"missing_netsuite"`
	PartsNoLineItems   int64      `json:"parts_no_line_items"`
	FlaggedJobs        int64      `json:"flagged_jobs"`
	PassingJobs        int64      `json:"passing_jobs"`
	ResolvedFlags      int64      `json:"resolved_flags"`
	UnresolvedFlags    int64      `json:"unresolved_flags"`
	JobsWithLineItems  int64      `json:"jobs_with_line_items"`
	JobsWithChecklists int64      `json:"jobs_with_checklists"`
	LastSync           *time.Time `json:"last_sync"`
}

type serialMatchView struct {
	SearchedSerial   string   `json:"searched_serial"`
	Normalized       string   `json:"normalized"`
	JobUID           string   `json:"job_uid"`
	JobNumber        string   `json:"job_number"`
	Title            string   `json:"title"`
	OrganizationName string   `json:"organization_name"`
	AssetName        string   `json:"asset_name"`
	ServiceTeam      *string  `json:"service_team"`
	CreatedAt        string   `json:"created_at"`
	MatchedIn        []string `json:"matched_in"`
	URL              string   `json:"url"`
}

type serialLookupView struct {
	Searched int               `json:"searched"`
	Found    int               `json:"found"`
	NotFound []string          `json:"not_found"`
	Matches  []serialMatchView `json:"matches"`
}

func newSerialLookupView(terms []string, matches []store.SerialMatch) serialLookupView {
	v := serialLookupView{Searched: len(terms), NotFound: []string{}, Matches: make([]serialMatchView, 0, len(matches))}
	hit := map[string]bool{}
	for _, m := range matches {
		hit[m.SearchedSerial] = true
		v.Matches = append(v.Matches, serialMatchView{
			SearchedSerial:   m.SearchedSerial,
			Normalized:       m.Normalized,
			JobUID:           m.JobUID,
			JobNumber:        m.JobNumber,
			Title:            m.Title,
			OrganizationName: m.OrganizationName,
			AssetName:        m.AssetName,
			ServiceTeam:      m.ServiceTeam,
			CreatedAt:        m.CreatedAt,
			MatchedIn:        m.MatchedIn,
			URL:              fmt.Sprintf(notify.JobURL, m.JobUID),
		})
	}
	for _, t := range terms {
		if !hit[t] {
			v.NotFound = append(v.NotFound, t)
		}
	}
	v.Found = len(hit)
	return v
}

type filtersView struct {
	Filters       []string `json:"filters"`
	Organizations []string `json:"organizations"`
	ServiceTeams  []string `json:"service_teams"`
	Categories    []string `json:"categories"`
	Months        []string `json:"months"`
}

type tallyView struct {
	Name           string `json:"name"`
	TotalJobs      int64  `json:"total_jobs"`
	JobsWithIssues int64  `json:"jobs_with_issues"`
}

type syncRunView struct {
	RunID         string     `json:"run_id"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	JobsProcessed int        `json:"jobs_processed"`
	JobsSkipped   int        `json:"jobs_skipped"`
	JobsFailed    int        `json:"jobs_failed"`
	FlagsCreated  int        `json:"flags_created"`
	Errors        []string   `json:"errors"`
}

func newSyncRunView(l models.SyncLog) syncRunView {
	v := syncRunView{
		RunID:         l.RunID,
		Mode:          l.Mode,
		Status:        l.Status,
		StartedAt:     l.StartedAt,
		CompletedAt:   l.CompletedAt,
		JobsProcessed: l.JobsProcessed,
		JobsSkipped:   l.JobsSkipped,
		JobsFailed:    l.JobsFailed,
		FlagsCreated:  l.FlagsCreated,
		Errors:        []string{},
	}
	if l.Errors != "" {
		if err := json.Unmarshal([]byte(l.Errors), &v.Errors); err != nil {
			v.Errors = []string{l.Errors}
		}
	}
	return v
}

type notificationStatsView struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Last24h    int64 `json:"last_24h"`
}
