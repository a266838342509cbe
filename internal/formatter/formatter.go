// Package formatter renders verification results for display. Every function
// is pure and safe to call with a nil result.
package formatter

import (
	"encoding/json"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"verifytx_gateway/internal/model"
)

const (
	dateLayout     = "January 2, 2006"
	dateTimeLayout = "January 2, 2006 3:04 PM"
)

var (
	money = message.NewPrinter(language.English)

	funcs = template.FuncMap{
		"title":        title,
		"class":        statusClass,
		"date":         func(t time.Time) string { return t.Format(dateLayout) },
		"datetime":     func(t time.Time) string { return t.Format(dateTimeLayout) },
		"benefitItems": benefitItems,
	}

	resultTmpl = template.Must(template.New("result").Funcs(funcs).Parse(
		`<div class="verifytx-result {{if .Success}}success{{else}}error{{end}}">` +
			`<div class="result-header">{{if .Success}}Insurance Verified{{else}}Verification Failed{{end}}</div>` +
			`{{with .PayerName}}<div class="result-payer"><strong>Provider:</strong> {{.}}</div>{{end}}` +
			`{{with .Status}}<div class="result-status"><strong>Status:</strong> <span class="status-{{class .}}">{{title .}}</span></div>{{end}}` +
			`{{with .Error}}<div class="result-error">{{.}}</div>{{end}}` +
			`</div>`))

	badgeTmpl = template.Must(template.New("badge").Funcs(funcs).Parse(
		`<div class="verifytx-status verifytx-status-{{class .Status}}">` +
			`<span class="status-label">Status:</span> <span class="status-value">{{title .Status}}</span>` +
			`{{if not .VerifiedAt.IsZero}}<span class="verified-at"> (Verified: {{date .VerifiedAt}})</span>{{end}}` +
			`</div>`))

	detailTmpl = template.Must(template.New("detail").Funcs(funcs).Parse(
		`<div class="verifytx-results-detail">` +
			`{{with .Status}}<div class="verification-status status-{{class .}}"><strong>Coverage Status:</strong> <span class="status-badge">{{title .}}</span></div>{{end}}` +
			`{{with .Payer}}<div class="verification-payer"><strong>Insurance Provider:</strong> {{or .Name "Unknown"}}</div>{{end}}` +
			`{{with .Subscriber}}<div class="verification-subscriber"><strong>Subscriber:</strong> {{.FirstName}} {{.LastName}}{{with .MemberID}} (ID: {{.}}){{end}}</div>{{end}}` +
			`{{if .Benefits}}<div class="verification-benefits"><strong>Benefits Summary:</strong><ul class="benefits-list">` +
			`{{range .Benefits}}<li class="benefit-item"><span class="benefit-type">{{title (or .Type "general")}}:</span>{{with benefitItems .InNetwork}} {{.}}{{end}}</li>{{end}}` +
			`</ul></div>{{end}}` +
			`{{if not .VerifiedAt.IsZero}}<div class="verification-date"><strong>Verified On:</strong> {{datetime .VerifiedAt}}</div>{{end}}` +
			`{{with .VOBID}}<div class="verification-id"><strong>Verification ID:</strong> <code>{{.}}</code></div>{{end}}` +
			`</div>`))
)

// resultView flattens the fields the result template reads.
type resultView struct {
	Success   bool
	PayerName string
	Status    string
	Error     string
}

// HTML renders the short result block shown after a verification.
func HTML(r *model.VerificationResult) string {
	if r == nil {
		r = &model.VerificationResult{}
	}
	return render(resultTmpl, resultView{
		Success:   r.Success,
		PayerName: r.PayerName(),
		Status:    r.Status,
		Error:     r.Error,
	})
}

// Text renders the result as newline-separated lines.
func Text(r *model.VerificationResult) string {
	if r == nil {
		r = &model.VerificationResult{}
	}

	lines := make([]string, 0, 4)
	if r.Success {
		lines = append(lines, "Insurance Verified Successfully")
	} else {
		lines = append(lines, "Insurance Verification Failed")
	}
	if r.Status != "" {
		lines = append(lines, "Status: "+title(r.Status))
	}
	if name := r.PayerName(); name != "" {
		lines = append(lines, "Provider: "+name)
	}
	if r.Error != "" {
		lines = append(lines, "Error: "+r.Error)
	}
	return strings.Join(lines, "\n")
}

// CoverageSummary takes the first in-network copay, deductible and
// out-of-pocket block found across the benefit lines.
func CoverageSummary(benefits []model.BenefitLine) *model.CoverageSummary {
	summary := &model.CoverageSummary{Status: model.StatusActive}
	for _, b := range benefits {
		n := b.InNetwork
		if n == nil {
			continue
		}
		if summary.Copay == nil && n.Copay != nil {
			v := *n.Copay
			summary.Copay = &v
		}
		if summary.Deductible == nil && n.Deductible != nil {
			d := *n.Deductible
			summary.Deductible = &d
		}
		if summary.OutOfPocket == nil && n.OutOfPocket != nil {
			o := *n.OutOfPocket
			summary.OutOfPocket = &o
		}
	}
	return summary
}

// FormatForDisplay bundles every projection the host needs to render a result.
func FormatForDisplay(r *model.VerificationResult) *model.Display {
	if r == nil {
		r = &model.VerificationResult{}
	}

	d := &model.Display{
		HTML:    HTML(r),
		Text:    Text(r),
		Status:  r.Status,
		Success: r.Success,
	}
	if d.Status == "" {
		d.Status = model.StatusUnknown
	}

	if r.Success {
		d.Message = "Insurance verified successfully"
		if len(r.Benefits) > 0 {
			d.Coverage = CoverageSummary(r.Benefits)
		}
	} else {
		d.Message = r.Error
		if d.Message == "" {
			d.Message = "Unable to verify insurance"
		}
	}
	return d
}

// StatusBadge renders the compact status line stored with a form entry.
func StatusBadge(r *model.VerificationResult) string {
	if r == nil {
		return ""
	}
	view := *r
	if view.Status == "" {
		view.Status = model.StatusUnknown
	}
	return render(badgeTmpl, &view)
}

// DetailHTML renders the full entry detail view.
func DetailHTML(r *model.VerificationResult) string {
	if r == nil {
		return "Not verified"
	}
	return render(detailTmpl, r)
}

// EntryText is the plain-text entry detail.
func EntryText(r *model.VerificationResult) string {
	if r == nil {
		return "Not verified"
	}

	var lines []string
	if r.Status != "" {
		lines = append(lines, "Status: "+r.Status)
	}
	if name := r.PayerName(); name != "" {
		lines = append(lines, "Payer: "+name)
	}
	if s := r.Subscriber; s != nil {
		lines = append(lines, "Subscriber: "+s.FirstName+" "+s.LastName)
	}
	return strings.Join(lines, "\n")
}

// Merge tag modifiers.
const (
	ModifierStatus   = "status"
	ModifierPayer    = "payer"
	ModifierMemberID = "member_id"
	ModifierVOBID    = "vob_id"
	ModifierJSON     = "json"
)

// MergeTag resolves a merge tag for the result. An unknown or empty modifier
// yields the "Status: X | Payer: Y" summary.
func MergeTag(r *model.VerificationResult, modifier string) string {
	switch modifier {
	case ModifierStatus:
		if r == nil {
			return ""
		}
		return r.Status
	case ModifierPayer:
		return r.PayerName()
	case ModifierMemberID:
		if r == nil || r.Subscriber == nil {
			return ""
		}
		return r.Subscriber.MemberID
	case ModifierVOBID:
		if r == nil {
			return ""
		}
		return r.VOBID
	case ModifierJSON:
		if r == nil {
			return ""
		}
		data, err := json.Marshal(r)
		if err != nil {
			return ""
		}
		return string(data)
	}

	if r == nil || r.Status == "" {
		return "Not verified"
	}
	out := "Status: " + r.Status
	if name := r.PayerName(); name != "" {
		out += " | Payer: " + name
	}
	return out
}

func render(t *template.Template, data any) string {
	var b strings.Builder
	_ = t.Execute(&b, data)
	return b.String()
}

// title builds a Caser per call; a Caser keeps state and cannot be shared.
func title(s string) string {
	return cases.Title(language.English, cases.NoLower).String(s)
}

// statusClass lower-cases s and keeps only characters valid in a CSS class.
func statusClass(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, strings.ToLower(s))
}

func benefitItems(n *model.NetworkBenefit) string {
	if n == nil {
		return ""
	}

	var items []string
	if n.Copay != nil {
		items = append(items, money.Sprintf("Copay: $%.2f", *n.Copay))
	}
	if d := n.Deductible; d != nil {
		items = append(items, money.Sprintf("Deductible: $%.2f (Met: $%.2f)", d.Amount, d.Met))
	}
	if o := n.OutOfPocket; o != nil {
		items = append(items, money.Sprintf("Out of Pocket Max: $%.2f (Met: $%.2f)", o.Max, o.Met))
	}
	return strings.Join(items, ", ")
}
