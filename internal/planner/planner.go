// Package planner derives the manga script from a structured document
// extraction. Both entry points are pure: same input, same output, no I/O.
package planner

import (
	"fmt"
	"strings"

	"mangagen/internal/domain"
)

const (
	minPanels = 4
	maxPanels = 8

	// Contact and tips panels are only added while the total is below this,
	// keeping margin for one more entry behind them.
	extrasCap = 7
)

// fillerSentences pad a plan that is still short after every document field
// has been consumed. Selection is by current panel count, so the fill order
// is fixed.
var fillerSentences = []string{
	"詳しくはお住まいの市区町村の窓口にご確認ください。",
	"申請には本人確認書類が必要になる場合があります。",
	"最新の情報は自治体の公式サイトで確認できます。",
	"不明な点は担当窓口へ電話で問い合わせるのが確実です。",
}

// PlanMeta describes how the panel list was assembled.
type PlanMeta struct {
	DocumentType string
	SummaryFill  int
	FillerFill   int
}

// Plan is the ordered manga script for one job.
type Plan struct {
	Title  string
	Panels []domain.Panel
	Meta   PlanMeta
}

// BuildPanels derives 4 to 8 ordered panels from the request.
//
// Priority order: up to two warnings verbatim, then the document-type
// specific fields, then one contact and one tips panel while room remains,
// then summary sentences and finally generic filler until the minimum is
// reached. The order and the caps are load-bearing: clients render panels
// in sequence and expect warnings first.
func BuildPanels(req domain.MangaRequest) Plan {
	var texts []string

	for _, w := range req.Warnings {
		if len(texts) >= 2 {
			break
		}
		if s := strings.TrimSpace(w); s != "" {
			texts = append(texts, s)
		}
	}

	texts = appendTyped(texts, req)

	if len(texts) < extrasCap {
		if s := contactText(req.Contact); s != "" {
			texts = append(texts, s)
		}
	}
	if len(texts) < extrasCap {
		if s := tipsText(req.Tips); s != "" {
			texts = append(texts, s)
		}
	}

	meta := PlanMeta{DocumentType: req.DocumentType}
	if len(texts) < minPanels {
		for _, sentence := range splitSentences(req.Summary) {
			if len(texts) >= minPanels {
				break
			}
			texts = append(texts, sentence)
			meta.SummaryFill++
		}
	}
	for len(texts) < minPanels {
		texts = append(texts, fillerSentences[len(texts)%len(fillerSentences)])
		meta.FillerFill++
	}

	if len(texts) > maxPanels {
		texts = texts[:maxPanels]
	}

	panels := make([]domain.Panel, len(texts))
	for i, text := range texts {
		panels[i] = domain.Panel{ID: i + 1, Text: text}
	}
	return Plan{Title: strings.TrimSpace(req.Title), Panels: panels, Meta: meta}
}

// appendTyped adds the document-type specific panels, stopping at the
// overall maximum.
func appendTyped(texts []string, req domain.MangaRequest) []string {
	push := func(s string) {
		if len(texts) >= maxPanels {
			return
		}
		if s = strings.TrimSpace(s); s != "" {
			texts = append(texts, s)
		}
	}

	switch req.DocumentType {
	case domain.DocumentTypeBenefit:
		if b := req.Benefit; b != nil {
			if b.Amount != "" {
				push("支給額：" + b.Amount)
			}
			if b.Eligibility != "" {
				push("対象：" + b.Eligibility)
			}
			if b.Deadline != "" {
				push("期限：" + b.Deadline)
			}
		}
	case domain.DocumentTypeProcedure:
		if p := req.Procedure; p != nil {
			for i, step := range p.Steps {
				if i >= 2 {
					break
				}
				push(fmt.Sprintf("%d. %s", step.Order, strings.TrimSpace(step.Action)))
			}
			if docs := nonEmpty(p.RequiredDocuments, 3); len(docs) > 0 {
				push("必要書類：" + strings.Join(docs, "、"))
			}
			if p.Deadline != "" {
				push("期限：" + p.Deadline)
			}
		}
	default:
		for _, point := range nonEmpty(req.KeyPoints, 3) {
			push(point)
		}
	}
	return texts
}

func contactText(c *domain.ContactInfo) string {
	if c == nil {
		return ""
	}
	dept := strings.TrimSpace(c.Department)
	phone := strings.TrimSpace(c.Phone)
	switch {
	case dept != "" && phone != "":
		return fmt.Sprintf("問い合わせ：%s（%s）", dept, phone)
	case dept != "":
		return "問い合わせ：" + dept
	case phone != "":
		return "問い合わせ：" + phone
	default:
		return ""
	}
}

func tipsText(tips []string) string {
	for _, tip := range tips {
		if s := strings.TrimSpace(tip); s != "" {
			return "ヒント：" + s
		}
	}
	return ""
}

// splitSentences breaks the summary on 。 and newlines, preserving order.
func splitSentences(summary string) []string {
	var out []string
	for _, chunk := range strings.FieldsFunc(summary, func(r rune) bool {
		return r == '。' || r == '\n'
	}) {
		if s := strings.TrimSpace(chunk); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonEmpty(values []string, limit int) []string {
	var out []string
	for _, v := range values {
		if len(out) >= limit {
			break
		}
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
