package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// tableNamePattern is the only shape a table identifier may take anywhere in
// the governance layer. Identifiers never reach query text directly; they are
// additionally resolved against a per-deployment allow-list at the
// persistence boundary.
var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidateTableName checks an identifier against the permitted charset.
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name is required")
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}

// ValidateColumnName applies the same charset rule as table names.
func ValidateColumnName(name string) error {
	if name == "" {
		return fmt.Errorf("column name is required")
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid column name: %q", name)
	}
	return nil
}

// ValidateJustification requires a non-empty, non-whitespace justification
// for export requests.
func ValidateJustification(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("justification is required")
	}
	return nil
}

// ValidateExportTables checks the requested table list: non-empty and every
// entry a well-formed identifier.
func ValidateExportTables(tables []string) error {
	if len(tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	for _, t := range tables {
		if err := ValidateTableName(t); err != nil {
			return err
		}
	}
	return nil
}
