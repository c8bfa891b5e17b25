package snippet

import (
	"regexp"
	"strings"

	"github.com/sells-group/sheets-crm/internal/model"
)

var (
	placeholder = regexp.MustCompile(`\{([^}]+)\}`)
	whitespace  = regexp.MustCompile(`\s+`)
)

func builtins(r model.Record) map[string]string {
	return map[string]string{
		"Executive_Name":     r.ExecutiveName,
		"Executive_Role":     r.ExecutiveRole,
		"Executive_LinkedIn": r.ExecutiveLinkedIn,
		"Email":              r.Email,
		"Company_Name":       r.CompanyName,
		"Domain":             r.Domain,
		"Exec Category":      r.ExecSearchCategory,
		"Exec_Category":      r.ExecSearchCategory,
	}
}

// Render substitutes every {Key} in tpl. Record fields win over snippets;
// a key with spaces also matches the snippet with those runs replaced by
// underscores. Unknown keys render empty.
func Render(tpl string, r model.Record, snippets map[string]string) string {
	fields := builtins(r)
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		key := strings.TrimSpace(m[1 : len(m)-1])
		if v, ok := fields[key]; ok {
			return v
		}
		if v, ok := snippets[key]; ok {
			return v
		}
		return snippets[whitespace.ReplaceAllString(key, "_")]
	})
}
