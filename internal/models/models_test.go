package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestJob_Fields(t *testing.T) {
	typ := reflect.TypeOf(Job{})

	assertGormTag(t, typ, "JobUID", "primaryKey")
	assertGormTag(t, typ, "JobNumber", "index:idx_jobs_job_number")
	assertGormTag(t, typ, "OrganizationName", "index:idx_jobs_completed_org,priority:2")
	assertGormTag(t, typ, "OrganizationName", "index:idx_jobs_created_org,priority:2")
	assertGormTag(t, typ, "CompletedAt", "index:idx_jobs_completed_org,priority:1")
	assertGormTag(t, typ, "CompletedAt", "index:idx_jobs_completed_team,priority:1")
	assertGormTag(t, typ, "CreatedAt", "index:idx_jobs_created_org,priority:1")
	assertGormTag(t, typ, "ServiceTeam", "index:idx_jobs_completed_team,priority:2")
	assertGormTag(t, typ, "SyncedAt", "index")

	assertFieldType(t, typ, "CreatedAt", "string")
	assertFieldType(t, typ, "CompletedAt", "*string")
	assertFieldType(t, typ, "ServiceTeam", "*string")
	assertFieldType(t, typ, "NetsuiteID", "*string")
	assertFieldType(t, typ, "SyncedAt", "time.Time")
}

func TestJob_Relations(t *testing.T) {
	typ := reflect.TypeOf(Job{})

	for _, field := range []string{"LineItems", "ChecklistParts", "CustomFields", "Flags"} {
		assertGormTag(t, typ, field, "foreignKey:JobUID")
		assertGormTag(t, typ, field, "references:JobUID")
	}
	assertFieldType(t, typ, "LineItems", "[]models.LineItem")
	assertFieldType(t, typ, "Flags", "[]models.ValidationFlag")
}

func TestChildRows_Fields(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeOf(LineItem{}),
		reflect.TypeOf(ChecklistPart{}),
		reflect.TypeOf(ChecklistAnswer{}),
		reflect.TypeOf(CustomField{}),
		reflect.TypeOf(ValidationFlag{}),
	} {
		assertGormTag(t, typ, "ID", "primaryKey")
		assertGormTag(t, typ, "ID", "autoIncrement")
		assertGormTag(t, typ, "JobUID", "not null")
		assertGormTag(t, typ, "JobUID", "index")
	}

	assertFieldType(t, reflect.TypeOf(LineItem{}), "Quantity", "decimal.Decimal")
	assertFieldType(t, reflect.TypeOf(LineItem{}), "Price", "decimal.Decimal")
	assertGormTag(t, reflect.TypeOf(ChecklistPart{}), "Serial", "index")
}

func TestValidationFlag_Fields(t *testing.T) {
	typ := reflect.TypeOf(ValidationFlag{})

	assertGormTag(t, typ, "FlagType", "not null")
	assertGormTag(t, typ, "Severity", "default:error")
	assertGormTag(t, typ, "IsResolved", "default:false")
	assertFieldType(t, typ, "Details", "datatypes.JSON")
	assertFieldType(t, typ, "ResolvedAt", "*time.Time")
}

func TestNotificationLog_UniqueTriple(t *testing.T) {
	typ := reflect.TypeOf(NotificationLog{})

	assertGormTag(t, typ, "JobUID", "uniqueIndex:idx_notification_unique,priority:1")
	assertGormTag(t, typ, "NotificationType", "uniqueIndex:idx_notification_unique,priority:2")
	assertGormTag(t, typ, "Channel", "uniqueIndex:idx_notification_unique,priority:3")
}

func TestSyncLog_Fields(t *testing.T) {
	typ := reflect.TypeOf(SyncLog{})

	assertGormTag(t, typ, "RunID", "uniqueIndex")
	assertGormTag(t, typ, "Status", "default:in_progress")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
}

func TestTableNames(t *testing.T) {
	tests := []struct {
		model interface{ TableName() string }
		want  string
	}{
		{LineItem{}, "job_line_items"},
		{ChecklistPart{}, "job_checklist_parts"},
		{ChecklistAnswer{}, "job_checklist_text"},
		{CustomField{}, "job_custom_fields"},
		{SyncLog{}, "sync_log"},
		{NotificationLog{}, "notification_log"},
	}
	for _, tt := range tests {
		if got := tt.model.TableName(); got != tt.want {
			t.Errorf("%T.TableName() = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestSyncStatuses(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range []string{SyncInProgress, SyncCompleted, SyncFailed} {
		if s == "" || seen[s] {
			t.Errorf("status %q empty or duplicated", s)
		}
		seen[s] = true
	}
}
