// Package templates renders email template text with {{variable}}
// substitution and handles tenant footer branding.
package templates

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/printpress/notifications/internal/db"
)

var tokenPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes {{name}} tokens from vars. A token with no entry is
// left verbatim so a missing variable is visible in the delivered email
// instead of silently blanked.
func Render(text string, vars map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-2]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Name derives the logical template name from a job type:
// SEND_STATUS_UPDATE_EMAIL -> STATUS_UPDATE.
func Name(jobType db.JobType) string {
	name := strings.TrimPrefix(string(jobType), "SEND_")
	return strings.TrimSuffix(name, "_EMAIL")
}

// AppendFooter adds a tenant's custom footer to a plain-text body.
func AppendFooter(text, footer string) string {
	return text + "\n\n" + footer
}

// AppendHTMLFooter adds a tenant's custom footer to an HTML body as a
// separated block.
func AppendHTMLFooter(html, footer string) string {
	return html + fmt.Sprintf(
		`<div style="margin-top:24px;padding-top:12px;border-top:1px solid #ddd;color:#666;font-size:12px;">%s</div>`,
		footer,
	)
}
