// Package extract derives store rows from one decoded Zuper job. Every
// function is pure and tolerates missing nested data.
package extract

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/zulandar/jobvalidator/internal/models"
	"github.com/zulandar/jobvalidator/internal/serial"
	"github.com/zulandar/jobvalidator/internal/zuper"
)

// answerExcerptLen is how many characters of a checklist answer are kept on
// each mined part.
const answerExcerptLen = 200

// netsuiteLabelTerms identify the custom field holding the sales order id.
var netsuiteLabelTerms = []string{"netsuite", "sales order", "so id", "salesorder"}

// Record is everything derived from one job except its validation flags.
type Record struct {
	Job              models.Job
	LineItems        []models.LineItem
	ChecklistParts   []models.ChecklistPart
	ChecklistAnswers []models.ChecklistAnswer
	CustomFields     []models.CustomField
	Organization     *models.Organization
}

// Extract builds the job row and its child rows. syncedAt stamps the row.
func Extract(job *zuper.Job, syncedAt time.Time) Record {
	items := LineItems(job)
	parts := ChecklistParts(job)
	netsuiteID := NetsuiteID(job)

	rec := Record{
		LineItems:        items,
		ChecklistParts:   parts,
		ChecklistAnswers: ChecklistAnswers(job),
		CustomFields:     CustomFields(job),
		Organization:     Organization(job),
	}
	rec.Job = models.Job{
		JobUID:            job.JobUID,
		JobNumber:         job.Number(),
		Title:             job.Title.String(),
		Category:          Category(job),
		Status:            CurrentStatus(job),
		CustomerName:      job.CustomerName.String(),
		ServiceTeam:       ServiceTeam(job),
		AssetName:         AssetName(job),
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
		CompletedAt:       CompletionDate(job),
		HasLineItems:      len(items) > 0,
		HasChecklistParts: len(parts) > 0,
		HasNetsuiteID:     netsuiteID != nil,
		NetsuiteID:        netsuiteID,
		JiraLink:          linkField(job, "jira"),
		SlackLink:         linkField(job, "slack"),
		SyncedAt:          syncedAt.UTC(),
	}
	if rec.Organization != nil {
		rec.Job.OrganizationUID = rec.Organization.OrganizationUID
		rec.Job.OrganizationName = rec.Organization.Name
	}
	return rec
}

// LineItems maps the products array onto line items. A missing quantity
// counts as one and a missing price as zero.
func LineItems(job *zuper.Job) []models.LineItem {
	items := make([]models.LineItem, 0, len(job.Products))
	for _, p := range job.Products {
		items = append(items, models.LineItem{
			JobUID:   job.JobUID,
			Name:     p.ProductName.String(),
			Code:     p.ProductID.String(),
			Serials:  strings.Join(p.SerialNos, ", "),
			Quantity: p.Quantity.Or(decimal.NewFromInt(1)),
			Price:    p.Price.Or(decimal.Zero),
			Type:     p.ProductType.String(),
		})
	}
	return items
}

// ChecklistParts mines serial numbers out of every checklist answer in the
// status history. One answer can yield several parts.
func ChecklistParts(job *zuper.Job) []models.ChecklistPart {
	parts := []models.ChecklistPart{}
	for _, st := range job.Statuses {
		for _, item := range st.Checklist {
			answer := item.Answer.String()
			for _, s := range serial.ExtractAll(answer) {
				parts = append(parts, models.ChecklistPart{
					JobUID:     job.JobUID,
					Serial:     s,
					Question:   item.Question.String(),
					Answer:     truncateRunes(answer, answerExcerptLen),
					StatusName: st.StatusName,
				})
			}
		}
	}
	return parts
}

// ChecklistAnswers keeps every non-blank checklist answer for text search.
func ChecklistAnswers(job *zuper.Job) []models.ChecklistAnswer {
	var answers []models.ChecklistAnswer
	for _, st := range job.Statuses {
		for _, item := range st.Checklist {
			answer := strings.TrimSpace(item.Answer.String())
			if answer == "" {
				continue
			}
			answers = append(answers, models.ChecklistAnswer{
				JobUID:     job.JobUID,
				Question:   item.Question.String(),
				Answer:     answer,
				StatusName: st.StatusName,
			})
		}
	}
	return answers
}

// CustomFields carries the custom fields through unchanged.
func CustomFields(job *zuper.Job) []models.CustomField {
	fields := make([]models.CustomField, 0, len(job.CustomFields))
	for _, f := range job.CustomFields {
		fields = append(fields, models.CustomField{
			JobUID: job.JobUID,
			Label:  f.Label,
			Value:  f.Value.String(),
			Type:   f.Type,
		})
	}
	return fields
}

// NetsuiteID returns the trimmed value of the first custom field whose label
// mentions a sales order and whose value is not blank.
func NetsuiteID(job *zuper.Job) *string {
	for _, f := range job.CustomFields {
		label := strings.ToLower(f.Label)
		if !containsAny(label, netsuiteLabelTerms) {
			continue
		}
		if v := strings.TrimSpace(f.Value.String()); v != "" {
			return &v
		}
	}
	return nil
}

// AssetName returns the first asset's code, falling back to its name.
// Additional assets are ignored.
func AssetName(job *zuper.Job) string {
	if len(job.Assets) == 0 || job.Assets[0].Asset == nil {
		return ""
	}
	a := job.Assets[0].Asset
	if a.AssetCode != "" {
		return a.AssetCode.String()
	}
	return a.AssetName.String()
}

// ServiceTeam attributes the job to the team of whoever last moved it past
// NEW, walking the status history newest first. When nobody resolves to a
// team it falls back to the first assigned team.
func ServiceTeam(job *zuper.Job) *string {
	for i := len(job.Statuses) - 1; i >= 0; i-- {
		st := job.Statuses[i]
		if st.StatusType == "NEW" || st.DoneBy == nil || st.DoneBy.UserUID == "" {
			continue
		}
		if team := teamOf(job, st.DoneBy.UserUID); team != "" {
			return &team
		}
	}
	if len(job.AssignedToTeam) > 0 {
		if t := job.AssignedToTeam[0].Team; t != nil && t.TeamName != "" {
			name := t.TeamName
			return &name
		}
	}
	return nil
}

// teamOf finds the team name userUID was assigned under.
func teamOf(job *zuper.Job, userUID string) string {
	for _, a := range job.AssignedTo {
		if a.User == nil || a.User.UserUID != userUID {
			continue
		}
		if a.Team != nil {
			return a.Team.TeamName
		}
		return ""
	}
	return ""
}

// CompletionDate returns the timestamp of the most recent COMPLETED or
// CLOSED status.
func CompletionDate(job *zuper.Job) *string {
	for i := len(job.Statuses) - 1; i >= 0; i-- {
		st := job.Statuses[i]
		if st.StatusType == "COMPLETED" || st.StatusType == "CLOSED" {
			ts := st.UpdatedAt
			return &ts
		}
	}
	return nil
}

// Category returns the first category name, or "".
func Category(job *zuper.Job) string {
	if len(job.Category) == 0 {
		return ""
	}
	return job.Category[0].CategoryName
}

// CurrentStatus returns the job's current status name, falling back to the
// first entry of the status history.
func CurrentStatus(job *zuper.Job) string {
	if job.CurrentStatus != nil && job.CurrentStatus.StatusName != "" {
		return job.CurrentStatus.StatusName
	}
	if len(job.Statuses) > 0 {
		return job.Statuses[0].StatusName
	}
	return ""
}

// Organization returns the customer's organization, or nil when absent.
func Organization(job *zuper.Job) *models.Organization {
	if job.Customer == nil || job.Customer.Organization == nil || job.Customer.Organization.OrganizationUID == "" {
		return nil
	}
	org := job.Customer.Organization
	return &models.Organization{
		OrganizationUID: org.OrganizationUID,
		Name:            org.OrganizationName.String(),
	}
}

// linkField returns the value of the first custom field whose label
// contains term.
func linkField(job *zuper.Job, term string) *string {
	for _, f := range job.CustomFields {
		if strings.Contains(strings.ToLower(f.Label), term) {
			v := strings.TrimSpace(f.Value.String())
			if v == "" {
				return nil
			}
			return &v
		}
	}
	return nil
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
