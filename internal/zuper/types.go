package zuper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Job is one work order as returned by the Zuper API. Only the fields the
// sync reads are modelled; fields whose shape varies between endpoints use
// the tolerant types below so decoding happens once, here.
type Job struct {
	JobUID          string        `json:"job_uid"`
	JobNumber       FlexString    `json:"job_number"`
	WorkOrderNumber FlexString    `json:"work_order_number"`
	Title           FlexString    `json:"job_title"`
	CustomerName    FlexString    `json:"customer_name"`
	Customer        *Customer     `json:"customer"`
	Category        CategoryList  `json:"job_category"`
	CurrentStatus   *Status       `json:"current_job_status"`
	CreatedAt       string        `json:"created_at"`
	UpdatedAt       string        `json:"updated_at"`
	Assets          AssetList     `json:"assets"`
	Products        []Product     `json:"products"`
	Statuses        []Status      `json:"job_status"`
	AssignedTo      []Assignment  `json:"assigned_to"`
	AssignedToTeam  []TeamRef     `json:"assigned_to_team"`
	CustomFields    []CustomField `json:"custom_fields"`

	// Malformed is set when the record could not be decoded into this shape.
	// Only JobUID is meaningful in that case.
	Malformed error `json:"-"`
}

// Customer is the customer block of a job.
type Customer struct {
	CustomerUID  string        `json:"customer_uid"`
	Organization *Organization `json:"customer_organization"`
}

// Organization is the customer's organization.
type Organization struct {
	OrganizationUID  string     `json:"organization_uid"`
	OrganizationName FlexString `json:"organization_name"`
}

// Category is a job category entry.
type Category struct {
	CategoryUID  string `json:"category_uid"`
	CategoryName string `json:"category_name"`
}

// AssetRef wraps one attached asset.
type AssetRef struct {
	Asset *Asset `json:"asset"`
}

// Asset is the nested asset record.
type Asset struct {
	AssetUID  string     `json:"asset_uid"`
	AssetCode FlexString `json:"asset_code"`
	AssetName FlexString `json:"asset_name"`
}

// Product is one entry of the products array, the API's line items.
type Product struct {
	ProductName FlexString  `json:"product_name"`
	ProductID   FlexString  `json:"product_id"`
	SerialNos   []string    `json:"serial_nos"`
	Quantity    FlexDecimal `json:"quantity"`
	Price       FlexDecimal `json:"price"`
	ProductType FlexString  `json:"product_type"`
}

// Status is one entry of the job status history.
type Status struct {
	StatusName string          `json:"status_name"`
	StatusType string          `json:"status_type"`
	UpdatedAt  string          `json:"updated_at"`
	DoneBy     *User           `json:"done_by"`
	Checklist  []ChecklistItem `json:"checklist"`
}

// ChecklistItem is one answered checklist question.
type ChecklistItem struct {
	Question  FlexString `json:"question"`
	Answer    FlexString `json:"answer"`
	UpdatedAt string     `json:"updated_at"`
}

// User identifies a Zuper user.
type User struct {
	UserUID string `json:"user_uid"`
}

// Team identifies a Zuper team.
type Team struct {
	TeamUID  string `json:"team_uid"`
	TeamName string `json:"team_name"`
}

// Assignment pairs an assigned user with the team they were assigned under.
type Assignment struct {
	User *User `json:"user"`
	Team *Team `json:"team"`
}

// TeamRef wraps an assigned team.
type TeamRef struct {
	Team *Team `json:"team"`
}

// CustomField is a label/value/type triple.
type CustomField struct {
	Label string     `json:"label"`
	Value FlexString `json:"value"`
	Type  string     `json:"type"`
}

// FlexString decodes any JSON scalar into its string form. Null decodes to
// "", numbers and booleans to their literal text, and arrays or objects to
// their compact JSON.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
	case data[0] == '[' || data[0] == '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*s = FlexString(buf.String())
	default:
		*s = FlexString(data)
	}
	return nil
}

// String returns the decoded value.
func (s FlexString) String() string { return string(s) }

// FlexDecimal decodes a number or numeric string. Null, "" and absent values
// leave Valid false.
type FlexDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *FlexDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = FlexDecimal{}
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*d = FlexDecimal{}
			return nil
		}
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("zuper: decimal %q: %w", raw, err)
	}
	*d = FlexDecimal{Decimal: v, Valid: true}
	return nil
}

// Or returns the value, or def when no value was present.
func (d FlexDecimal) Or(def decimal.Decimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return def
}

// CategoryList decodes job_category, which the API sends either as a list of
// categories or as a single category object.
type CategoryList []Category

// UnmarshalJSON implements json.Unmarshaler.
func (c *CategoryList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = nil
	case data[0] == '[':
		var list []Category
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*c = list
	case data[0] == '{':
		var one Category
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*c = CategoryList{one}
	case data[0] == '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if name == "" {
			*c = nil
			return nil
		}
		*c = CategoryList{{CategoryName: name}}
	default:
		return fmt.Errorf("zuper: job_category: unexpected %s", data)
	}
	return nil
}

// AssetList decodes assets, sent either as a list or as a single object.
type AssetList []AssetRef

// UnmarshalJSON implements json.Unmarshaler.
func (a *AssetList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*a = nil
	case data[0] == '[':
		var list []AssetRef
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*a = list
	case data[0] == '{':
		var one AssetRef
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*a = AssetList{one}
	default:
		return fmt.Errorf("zuper: assets: unexpected %s", data)
	}
	return nil
}

// decodeJob decodes one raw record. A record that does not fit the Job shape
// is returned with Malformed set and whatever job_uid could be recovered.
func decodeJob(raw json.RawMessage) Job {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		var id struct {
			JobUID string `json:"job_uid"`
		}
		_ = json.Unmarshal(raw, &id)
		return Job{JobUID: id.JobUID, Malformed: fmt.Errorf("zuper: decode job %q: %w", id.JobUID, err)}
	}
	return job
}

func decodeJobs(raws []json.RawMessage) []Job {
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		jobs = append(jobs, decodeJob(raw))
	}
	return jobs
}

// Number returns the human-facing job number, preferring the work order number.
func (j *Job) Number() string {
	if j.WorkOrderNumber != "" {
		return j.WorkOrderNumber.String()
	}
	return j.JobNumber.String()
}

// ChangedAt returns updated_at, falling back to created_at.
func (j *Job) ChangedAt() string {
	if j.UpdatedAt != "" {
		return j.UpdatedAt
	}
	return j.CreatedAt
}
