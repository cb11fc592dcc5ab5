// Package provision maps requested actions to platform operations,
// enforcing naming, idempotency, and validation policy, and writes one
// audit entry per attempted operation.
package provision

import (
	"strings"

	"dpm/internal/domain"
)

// Production environment spellings accepted from input rows.
var prodEnvNames = map[string]bool{
	"prod":       true,
	"production": true,
	"prd":        true,
	"p":          true,
}

// GroupName is the single naming authority for groups. Group names are
// always derived from the row, never taken verbatim from input.
func GroupName(row domain.Row) (string, error) {
	prefix := "nprod"
	if prodEnvNames[strings.ToLower(row.Get("env"))] {
		prefix = "prod"
	}

	bu := row.Get("bu")
	if bu == "Others" {
		bu = row.Get("other_type")
		if bu == "" {
			return "", domain.ErrValidation("other_type is required when bu is 'Others'")
		}
	}

	parts := []string{prefix}
	if bu != "" {
		parts = append(parts, "TM"+bu)
	}
	for _, key := range []string{"domain", "appName", "role"} {
		if v := row.Get(key); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "_"), nil
}

// splitMembers parses a member list on the first separator present
// (comma, then semicolon), trimming and lowercasing each entry.
func splitMembers(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, sep := range []string{",", ";"} {
		if !strings.Contains(raw, sep) {
			continue
		}
		var members []string
		for _, part := range strings.Split(raw, sep) {
			if part = strings.TrimSpace(part); part != "" {
				members = append(members, strings.ToLower(part))
			}
		}
		return members
	}
	return []string{strings.ToLower(raw)}
}
