// Package sqlguard certifies model-generated SQL as a single, read-only,
// well-terminated statement before anything executes it. It is a linear
// pipeline of textual and structural checks over one string, not a SQL
// parser: each stage either transforms the text or rejects it with the
// stage name. The scan is deliberately conservative and cannot tell a
// keyword inside a string literal from SQL syntax, so a query comparing
// against the literal 'update' is rejected; that over-rejection is the
// baseline contract.
//
// Sanitize is stateless and is re-run on every execution path. SQL arriving
// from the model and SQL supplied directly by a caller are equally
// untrusted.
package sqlguard

import (
	"regexp"
	"strings"

	"github.com/askdb/askdb/internal/errors"
)

// Pipeline stage names, carried on rejections so callers can surface the
// exact gate that failed.
const (
	StageAnchor          = "statement_anchor"
	StageReadOnly        = "read_only_enforcement"
	StageSchemaEnum      = "schema_enumeration_defense"
	StageCommentInject   = "comment_injection_defense"
	StageSingleStatement = "single_statement_enforcement"
	StageLeadingKeyword  = "leading_keyword_check"
)

var (
	anchorPattern = regexp.MustCompile(`(?i)\b(SELECT|WITH)\b`)

	// Whole-word matches anywhere after the leading keyword.
	blockedKeywords = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bINSERT\b`),
		regexp.MustCompile(`(?i)\bUPDATE\b`),
		regexp.MustCompile(`(?i)\bDELETE\b`),
		regexp.MustCompile(`(?i)\bDROP\b`),
		regexp.MustCompile(`(?i)\bTRUNCATE\b`),
		regexp.MustCompile(`(?i)\bALTER\b`),
		regexp.MustCompile(`(?i)\bCREATE\b`),
		regexp.MustCompile(`(?i)\bGRANT\b`),
		regexp.MustCompile(`(?i)\bREVOKE\b`),
		regexp.MustCompile(`(?i)\bEXEC\b`),
		regexp.MustCompile(`(?i)\bEXECUTE\b`),
		regexp.MustCompile(`(?i)\bEVAL\b`),
		regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`),
		regexp.MustCompile(`(?i)\bINTO\s+DUMPFILE\b`),
		regexp.MustCompile(`(?i)\bLOAD_FILE\b`),
	}

	unionSelectPattern = regexp.MustCompile(`(?i)\bUNION\s+ALL\s+SELECT\b`)

	// Metadata catalogs reachable only through sanctioned introspection.
	catalogPattern = regexp.MustCompile(`(?i)\b(information_schema|pg_catalog|sqlite_master)\b`)

	commentInjectPattern = regexp.MustCompile(`;\s*--`)
)

// Sanitize runs the full pipeline over raw model output and returns the
// clean statement, or a validation rejection naming the failing stage. The
// statement is never silently rewritten into something "safe": cosmetic
// stripping and the trailing terminator are the only transformations.
func Sanitize(raw string) (string, error) {
	text := stripFences(raw)

	text, err := anchorStatement(text)
	if err != nil {
		return "", err
	}

	text = normalizeTerminator(text)

	if err := enforceReadOnly(text); err != nil {
		return "", err
	}

	if err := rejectSchemaEnumeration(text); err != nil {
		return "", err
	}

	if err := rejectCommentInjection(text); err != nil {
		return "", err
	}

	if err := enforceSingleStatement(text); err != nil {
		return "", err
	}

	if err := checkLeadingKeyword(text); err != nil {
		return "", err
	}

	return text, nil
}

// stripFences removes markdown code fences and symmetric wrapping quotes.
// Purely cosmetic: semantic SQL content is untouched, and a statement with
// no fences passes through unchanged.
func stripFences(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}

	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))

	// Strip a quote pair only when it wraps the whole statement.
	for len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if first != last || (first != '"' && first != '\'' && first != '`') {
			break
		}

		text = strings.TrimSpace(text[1 : len(text)-1])
	}

	return text
}

// anchorStatement locates the first SELECT or WITH and discards any
// commentary before it. No anchor means there is no statement to validate.
func anchorStatement(text string) (string, error) {
	loc := anchorPattern.FindStringIndex(text)
	if loc == nil {
		return "", errors.NewValidationError(StageAnchor, "no SELECT or WITH statement found").
			WithSuggestion("Rephrase the question so it describes data to read")
	}

	return text[loc[0]:], nil
}

// normalizeTerminator ensures the statement ends with exactly one ';'. When
// the final line trails off into a -- comment the terminator goes on its own
// line; appended directly, it would be swallowed by the comment and the
// statement would reach the backend unterminated.
func normalizeTerminator(text string) string {
	text = strings.TrimSpace(text)
	for strings.HasSuffix(text, ";") {
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	}

	if lastLineHasComment(text) {
		return text + "\n;"
	}

	return text + ";"
}

func lastLineHasComment(text string) bool {
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	}

	return strings.Contains(text, "--")
}

func enforceReadOnly(text string) error {
	// The leading SELECT/WITH has already been verified; scan the rest.
	body := text
	if loc := anchorPattern.FindStringIndex(body); loc != nil && loc[0] == 0 {
		body = body[loc[1]:]
	}

	for _, pattern := range blockedKeywords {
		if match := pattern.FindString(body); match != "" {
			return errors.Newf(errors.ErrTypeValidation, "%s: statement contains blocked keyword %q",
				StageReadOnly, strings.ToUpper(strings.Join(strings.Fields(match), " ")))
		}
	}

	return nil
}

func rejectSchemaEnumeration(text string) error {
	if unionSelectPattern.MatchString(text) && catalogPattern.MatchString(text) {
		return errors.NewValidationError(StageSchemaEnum,
			"UNION ALL SELECT against a metadata catalog is not allowed")
	}

	return nil
}

func rejectCommentInjection(text string) error {
	if commentInjectPattern.MatchString(text) {
		return errors.NewValidationError(StageCommentInject,
			"statement terminator followed by an inline comment")
	}

	return nil
}

func enforceSingleStatement(text string) error {
	statements := 0
	for _, segment := range strings.Split(text, ";") {
		if strings.TrimSpace(segment) != "" {
			statements++
		}
	}

	if statements > 1 {
		return errors.Newf(errors.ErrTypeValidation, "%s: expected one statement, found %d",
			StageSingleStatement, statements)
	}

	return nil
}

func checkLeadingKeyword(text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return errors.NewValidationError(StageLeadingKeyword, "statement is empty after cleaning")
	}

	leading := strings.ToUpper(strings.TrimSuffix(fields[0], ";"))
	if leading != "SELECT" && leading != "WITH" {
		return errors.Newf(errors.ErrTypeValidation, "%s: statement starts with %q, expected SELECT or WITH",
			StageLeadingKeyword, fields[0])
	}

	return nil
}
