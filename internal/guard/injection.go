package guard

import "regexp"

// injectionPattern is one named attack-pattern category. Categories are
// checked in order; detection stops at the first match.
type injectionPattern struct {
	category string
	re       *regexp.Regexp
}

// injectionPatterns is the ordered attack-pattern library. All patterns are
// case-insensitive; input is additionally lower-cased before matching so the
// behavior does not depend on the (?i) flag alone.
var injectionPatterns = []injectionPattern{
	// UNION-based extraction
	{"union_select", regexp.MustCompile(`(?i)union[\s/*]+(all[\s/*]+)?select`)},
	{"union_null_probe", regexp.MustCompile(`(?i)union\s+select\s+null`)},

	// Boolean-based blind
	{"quoted_or_equals", regexp.MustCompile(`(?i)'\s*or\s*'[^']*'\s*=\s*'`)},
	{"or_numeric_tautology", regexp.MustCompile(`(?i)\bor\s+\d+\s*=\s*\d+`)},
	{"and_numeric_tautology", regexp.MustCompile(`(?i)\band\s+\d+\s*=\s*\d+`)},
	{"or_true_literal", regexp.MustCompile(`(?i)\bor\s+true\b`)},

	// Time-based blind
	{"sleep_call", regexp.MustCompile(`(?i)\bsleep\s*\(`)},
	{"pg_sleep_call", regexp.MustCompile(`(?i)\bpg_sleep\s*\(`)},
	{"benchmark_call", regexp.MustCompile(`(?i)\bbenchmark\s*\(`)},
	{"waitfor_delay", regexp.MustCompile(`(?i)\bwaitfor\s+delay\b`)},

	// Error-based
	{"extractvalue_call", regexp.MustCompile(`(?i)\bextractvalue\s*\(`)},
	{"updatexml_call", regexp.MustCompile(`(?i)\bupdatexml\s*\(`)},

	// Stacked queries
	{"stacked_statement", regexp.MustCompile(`(?i);\s*(drop|delete|truncate|update|insert|alter|create|grant|revoke)\b`)},
	{"stacked_shutdown", regexp.MustCompile(`(?i);\s*shutdown\b`)},

	// Comment injection
	{"quote_comment", regexp.MustCompile(`(?i)'\s*(--|#)`)},
	{"inline_comment", regexp.MustCompile(`/\*.*\*/`)},
	{"trailing_comment", regexp.MustCompile(`(?i)\s--(\s|$)`)},

	// Schema probes
	{"information_schema", regexp.MustCompile(`(?i)information_schema`)},
	{"schema_columns_probe", regexp.MustCompile(`(?i)\btable_schema\b|\btable_name\b`)},
	{"sysobjects_probe", regexp.MustCompile(`(?i)\bsysobjects\b|\bsyscolumns\b`)},
	{"pg_catalog_probe", regexp.MustCompile(`(?i)\bpg_catalog\b|\bpg_tables\b`)},

	// File read/write primitives
	{"load_file_call", regexp.MustCompile(`(?i)\bload_file\s*\(`)},
	{"into_outfile", regexp.MustCompile(`(?i)into\s+(out|dump)file`)},

	// Encoding and construction primitives
	{"long_hex_literal", regexp.MustCompile(`(?i)0x[0-9a-f]{8,}`)},
	{"concat_call", regexp.MustCompile(`(?i)\b(group_)?concat(_ws)?\s*\(`)},
	{"char_construction", regexp.MustCompile(`(?i)\bchar\s*\(\s*\d+`)},
	{"cast_convert_call", regexp.MustCompile(`(?i)\b(cast|convert)\s*\(`)},

	// Conditional functions
	{"conditional_function", regexp.MustCompile(`(?i)\biif\s*\(|\bifnull\s*\(|\bcase\s+when\b`)},

	// Environment probes
	{"version_probe", regexp.MustCompile(`(?i)@@version|\bversion\s*\(\s*\)`)},
	{"user_probe", regexp.MustCompile(`(?i)\bcurrent_user\b|\bsession_user\b|\bsystem_user\b`)},
	{"database_probe", regexp.MustCompile(`(?i)\bdatabase\s*\(\s*\)|\bschema\s*\(\s*\)`)},

	// System procedures
	{"system_procedure", regexp.MustCompile(`(?i)\b(exec|execute)\s+(s|x)p_|\bxp_cmdshell\b`)},
	{"declare_variable", regexp.MustCompile(`(?i)\bdeclare\s+@`)},
}

// MatchInjection runs the input against the pattern library and returns the
// first matching category. Pure function, no side effects.
func MatchInjection(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			return p.category, true
		}
	}
	return "", false
}

// DetectInjection reports whether the input matches any known attack pattern.
func DetectInjection(text string) bool {
	_, matched := MatchInjection(text)
	return matched
}
