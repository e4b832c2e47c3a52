package zuper

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFlexString(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"SO-123"`, "SO-123"},
		{`null`, ""},
		{`12345`, "12345"},
		{`12.5`, "12.5"},
		{`true`, "true"},
		{`["a", "b"]`, `["a","b"]`},
		{`{"k": 1}`, `{"k":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var s FlexString
			if err := json.Unmarshal([]byte(tt.raw), &s); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if s.String() != tt.want {
				t.Errorf("got %q, want %q", s, tt.want)
			}
		})
	}
}

func TestFlexDecimal(t *testing.T) {
	tests := []struct {
		raw       string
		wantValid bool
		want      string
	}{
		{`2`, true, "2"},
		{`"2.50"`, true, "2.5"},
		{`" 10 "`, true, "10"},
		{`""`, false, "0"},
		{`null`, false, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var d FlexDecimal
			if err := json.Unmarshal([]byte(tt.raw), &d); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if d.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", d.Valid, tt.wantValid)
			}
			if !d.Decimal.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Decimal = %s, want %s", d.Decimal, tt.want)
			}
		})
	}
}

func TestFlexDecimal_Invalid(t *testing.T) {
	var d FlexDecimal
	if err := json.Unmarshal([]byte(`"lots"`), &d); err == nil {
		t.Fatal("expected error for non-numeric string")
	}
}

func TestFlexDecimal_Or(t *testing.T) {
	one := decimal.NewFromInt(1)
	if got := (FlexDecimal{}).Or(one); !got.Equal(one) {
		t.Errorf("Or on empty = %s, want 1", got)
	}
	v := FlexDecimal{Decimal: decimal.NewFromInt(4), Valid: true}
	if got := v.Or(one); !got.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Or on value = %s, want 4", got)
	}
}

func TestCategoryList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"list", `[{"category_name":"WM Repair - In Shop"},{"category_name":"Other"}]`, []string{"WM Repair - In Shop", "Other"}},
		{"object", `{"category_name":"LaserWeeder Service Call"}`, []string{"LaserWeeder Service Call"}},
		{"string", `"Reaper PM"`, []string{"Reaper PM"}},
		{"empty string", `""`, nil},
		{"null", `null`, nil},
		{"empty list", `[]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c CategoryList
			if err := json.Unmarshal([]byte(tt.raw), &c); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if len(c) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(c), len(tt.want))
			}
			for i, w := range tt.want {
				if c[i].CategoryName != w {
					t.Errorf("[%d] = %q, want %q", i, c[i].CategoryName, w)
				}
			}
		})
	}
}

func TestCategoryList_Number(t *testing.T) {
	var c CategoryList
	if err := json.Unmarshal([]byte(`42`), &c); err == nil {
		t.Fatal("expected error for numeric job_category")
	}
}

func TestAssetList(t *testing.T) {
	var a AssetList
	if err := json.Unmarshal([]byte(`{"asset":{"asset_code":"S38"}}`), &a); err != nil {
		t.Fatalf("Unmarshal object: %v", err)
	}
	if len(a) != 1 || a[0].Asset.AssetCode != "S38" {
		t.Errorf("object form = %+v", a)
	}

	a = nil
	if err := json.Unmarshal([]byte(`[{"asset":{"asset_name":"Slayer 1"}},{"asset":null}]`), &a); err != nil {
		t.Fatalf("Unmarshal list: %v", err)
	}
	if len(a) != 2 || a[0].Asset.AssetName != "Slayer 1" || a[1].Asset != nil {
		t.Errorf("list form = %+v", a)
	}
}

func TestDecodeJob_Full(t *testing.T) {
	raw := `{
		"job_uid": "j-1",
		"job_number": 1042,
		"work_order_number": "WO-1042",
		"job_title": "Replace scanner",
		"customer_name": "Farm Co",
		"customer": {"customer_organization": {"organization_uid": "org-1", "organization_name": "Farm Co"}},
		"job_category": {"category_name": "LaserWeeder Service Call"},
		"created_at": "2025-06-01T10:00:00Z",
		"updated_at": "2025-06-02T10:00:00Z",
		"products": [{"product_name": "Scanner", "product_id": "P-1", "serial_nos": ["CR-SM-000571"], "quantity": "2", "price": 150.5, "product_type": "PRODUCT"}],
		"job_status": [{"status_name": "Completed", "status_type": "COMPLETED", "updated_at": "2025-06-02T09:00:00Z", "done_by": {"user_uid": "u-1"}, "checklist": [{"question": "Parts?", "answer": ["CR-SM-000571"]}]}],
		"custom_fields": [{"label": "NetSuite SO", "value": 778812, "type": "NUMBER"}]
	}`
	job := decodeJob(json.RawMessage(raw))
	if job.Malformed != nil {
		t.Fatalf("Malformed: %v", job.Malformed)
	}
	if job.Number() != "WO-1042" {
		t.Errorf("Number() = %q, want WO-1042", job.Number())
	}
	if job.JobNumber != "1042" {
		t.Errorf("JobNumber = %q, want 1042", job.JobNumber)
	}
	if job.Customer.Organization.OrganizationUID != "org-1" {
		t.Errorf("organization uid = %q", job.Customer.Organization.OrganizationUID)
	}
	if len(job.Products) != 1 || !job.Products[0].Quantity.Decimal.Equal(decimal.NewFromInt(2)) {
		t.Errorf("products = %+v", job.Products)
	}
	if job.Statuses[0].Checklist[0].Answer != `["CR-SM-000571"]` {
		t.Errorf("answer = %q", job.Statuses[0].Checklist[0].Answer)
	}
	if job.CustomFields[0].Value != "778812" {
		t.Errorf("custom field value = %q", job.CustomFields[0].Value)
	}
}

func TestDecodeJob_Malformed(t *testing.T) {
	job := decodeJob(json.RawMessage(`{"job_uid": "j-bad", "products": {"oops": true}}`))
	if job.Malformed == nil {
		t.Fatal("expected Malformed to be set")
	}
	if job.JobUID != "j-bad" {
		t.Errorf("JobUID = %q, want j-bad", job.JobUID)
	}
}

func TestJob_ChangedAt(t *testing.T) {
	j := Job{CreatedAt: "2025-01-01", UpdatedAt: "2025-02-01"}
	if j.ChangedAt() != "2025-02-01" {
		t.Errorf("ChangedAt = %q", j.ChangedAt())
	}
	j.UpdatedAt = ""
	if j.ChangedAt() != "2025-01-01" {
		t.Errorf("ChangedAt fallback = %q", j.ChangedAt())
	}
}
