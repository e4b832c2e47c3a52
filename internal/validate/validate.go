// Package validate applies the billing data-quality rules to one job's
// extracted entities.
package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/zulandar/jobvalidator/internal/models"
)

// Rules holds the operator-configured term lists. Matching is
// case-insensitive substring matching.
type Rules struct {
	// SkipCategories exempt a job from every rule.
	SkipCategories []string
	// ConsumableTerms mark line items that never carry a sales order id.
	ConsumableTerms []string
}

// MissingNetsuiteDetails is the details blob of a missing_netsuite_id flag.
type MissingNetsuiteDetails struct {
	LineItemsCount      int      `json:"line_items_count"`
	LineItems           []string `json:"line_items"`
	ConsumablesExcluded int      `json:"consumables_excluded"`
}

// PartsNoLineItemsDetails is the details blob of a
// parts_replaced_no_line_items flag.
type PartsNoLineItemsDetails struct {
	PartsCount    int      `json:"parts_count"`
	PartsReplaced []string `json:"parts_replaced"`
}

// Evaluate returns the flags raised for one job, missing sales order first.
// The returned flags have no JobUID set.
func (r Rules) Evaluate(category string, items []models.LineItem, parts []models.ChecklistPart, netsuiteID *string) []models.ValidationFlag {
	flags := []models.ValidationFlag{}
	if matchesAny(category, r.SkipCategories) {
		return flags
	}

	if len(items) > 0 && blank(netsuiteID) {
		var billable []string
		for _, it := range items {
			if r.IsConsumable(it) {
				continue
			}
			billable = append(billable, it.Name)
		}
		if len(billable) > 0 {
			flags = append(flags, newFlag(
				models.FlagMissingNetsuiteID,
				fmt.Sprintf("Job has %d non-consumable line item(s) but missing NetSuite Sales Order ID", len(billable)),
				MissingNetsuiteDetails{
					LineItemsCount:      len(billable),
					LineItems:           billable,
					ConsumablesExcluded: len(items) - len(billable),
				},
			))
		}
	}

	if len(parts) > 0 && len(items) == 0 {
		serials := make([]string, len(parts))
		for i, p := range parts {
			serials[i] = p.Serial
		}
		flags = append(flags, newFlag(
			models.FlagPartsReplacedNoLineItems,
			fmt.Sprintf("Checklist shows %d part(s) replaced but no line items added", len(parts)),
			PartsNoLineItemsDetails{PartsCount: len(parts), PartsReplaced: serials},
		))
	}
	return flags
}

// IsConsumable reports whether any consumable term appears in the item's
// name, code, serials or type.
func (r Rules) IsConsumable(it models.LineItem) bool {
	for _, field := range []string{it.Name, it.Code, it.Serials, it.Type} {
		if matchesAny(field, r.ConsumableTerms) {
			return true
		}
	}
	return false
}

func newFlag(flagType, message string, details interface{}) models.ValidationFlag {
	// Details are plain structs of strings and ints; Marshal cannot fail.
	data, _ := json.Marshal(details)
	return models.ValidationFlag{
		FlagType:    flagType,
		Severity:    models.SeverityError,
		Message:     message,
		Details:     datatypes.JSON(data),
		Fingerprint: Fingerprint(flagType, data),
	}
}

// Fingerprint identifies a flag by type and details so a resolution can be
// carried over when a resync recomputes an identical flag.
func Fingerprint(flagType string, details []byte) string {
	h := sha256.New()
	h.Write([]byte(flagType))
	h.Write([]byte{0})
	h.Write(details)
	return hex.EncodeToString(h.Sum(nil))
}

func matchesAny(s string, terms []string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func blank(p *string) bool {
	return p == nil || strings.TrimSpace(*p) == ""
}
