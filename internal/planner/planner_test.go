package planner

import (
	"reflect"
	"strings"
	"testing"

	"mangagen/internal/domain"
)

func panelTexts(plan Plan) []string {
	out := make([]string, len(plan.Panels))
	for i, p := range plan.Panels {
		out[i] = p.Text
	}
	return out
}

func TestWarningsComeFirst(t *testing.T) {
	req := domain.MangaRequest{
		URL:      "https://city.example.jp/a",
		Title:    "児童手当",
		Summary:  "3行の説明。",
		Warnings: []string{"期限注意"},
	}
	plan := BuildPanels(req)
	if len(plan.Panels) < 4 || len(plan.Panels) > 8 {
		t.Fatalf("panel count = %d, want 4..8", len(plan.Panels))
	}
	if plan.Panels[0].Text != "期限注意" {
		t.Fatalf("first panel = %q, want the warning verbatim", plan.Panels[0].Text)
	}
	if plan.Title != "児童手当" {
		t.Fatalf("title = %q", plan.Title)
	}
}

func TestWarningsCappedAtTwo(t *testing.T) {
	req := domain.MangaRequest{
		URL:      "https://city.example.jp/a",
		Title:    "お知らせ",
		Summary:  "内容。",
		Warnings: []string{"警告1", "警告2", "警告3"},
	}
	plan := BuildPanels(req)
	texts := panelTexts(plan)
	if texts[0] != "警告1" || texts[1] != "警告2" {
		t.Fatalf("warning order wrong: %v", texts[:2])
	}
	for _, text := range texts {
		if text == "警告3" {
			t.Fatalf("third warning included: %v", texts)
		}
	}
}

func TestProcedureBranchOrder(t *testing.T) {
	req := domain.MangaRequest{
		URL:          "https://city.example.jp/p",
		Title:        "転入届",
		Summary:      "引っ越したら14日以内に届け出ます。",
		DocumentType: domain.DocumentTypeProcedure,
		Procedure: &domain.ProcedureInfo{
			Steps: []domain.ProcedureStep{
				{Order: 1, Action: "申請書を入手する"},
				{Order: 2, Action: "必要事項を記入する"},
				{Order: 3, Action: "窓口に提出する"},
			},
			RequiredDocuments: []string{"本人確認書類", "印鑑", "マイナンバーカード", "委任状"},
			Deadline:          "転入から14日以内",
		},
	}
	plan := BuildPanels(req)
	want := []string{
		"1. 申請書を入手する",
		"2. 必要事項を記入する",
		"必要書類：本人確認書類、印鑑、マイナンバーカード",
		"期限：転入から14日以内",
	}
	got := panelTexts(plan)
	if !reflect.DeepEqual(got[:4], want) {
		t.Fatalf("procedure sequence:\n got %v\nwant %v", got[:4], want)
	}
}

func TestBenefitBranchOrder(t *testing.T) {
	req := domain.MangaRequest{
		URL:          "https://city.example.jp/b",
		Title:        "児童手当",
		Summary:      "子育て世帯への手当です。",
		DocumentType: domain.DocumentTypeBenefit,
		Benefit: &domain.BenefitInfo{
			Amount:      "月額15,000円",
			Eligibility: "中学生までの児童を養育する世帯",
			Deadline:    "毎月末",
		},
	}
	got := panelTexts(BuildPanels(req))
	want := []string{
		"支給額：月額15,000円",
		"対象：中学生までの児童を養育する世帯",
		"期限：毎月末",
	}
	if !reflect.DeepEqual(got[:3], want) {
		t.Fatalf("benefit sequence:\n got %v\nwant %v", got[:3], want)
	}
}

func TestContactAndTipsRespectCap(t *testing.T) {
	req := domain.MangaRequest{
		URL:          "https://city.example.jp/b",
		Title:        "児童手当",
		Summary:      "説明。",
		DocumentType: domain.DocumentTypeBenefit,
		Warnings:     []string{"警告1", "警告2"},
		Benefit: &domain.BenefitInfo{
			Amount:      "月額15,000円",
			Eligibility: "中学生まで",
			Deadline:    "毎月末",
		},
		Contact: &domain.ContactInfo{Department: "こども家庭課", Phone: "03-0000-0000"},
		Tips:    []string{"オンライン申請が便利です"},
	}
	got := panelTexts(BuildPanels(req))
	if len(got) != 7 {
		t.Fatalf("panel count = %d, want 7: %v", len(got), got)
	}
	if got[5] != "問い合わせ：こども家庭課（03-0000-0000）" {
		t.Fatalf("contact panel = %q", got[5])
	}
	if got[6] != "ヒント：オンライン申請が便利です" {
		t.Fatalf("tips panel = %q", got[6])
	}
}

func TestSummaryAndFillerPadToMinimum(t *testing.T) {
	req := domain.MangaRequest{
		URL:     "https://city.example.jp/n",
		Title:   "お知らせ",
		Summary: "一文だけの概要。",
	}
	plan := BuildPanels(req)
	if len(plan.Panels) != 4 {
		t.Fatalf("panel count = %d, want 4", len(plan.Panels))
	}
	if plan.Panels[0].Text != "一文だけの概要" {
		t.Fatalf("summary sentence not used first: %q", plan.Panels[0].Text)
	}
	if plan.Meta.SummaryFill != 1 || plan.Meta.FillerFill != 3 {
		t.Fatalf("meta = %+v", plan.Meta)
	}
	// Filler is indexed by current panel count, so the tail is fixed.
	for i := 1; i < 4; i++ {
		if plan.Panels[i].Text != fillerSentences[i] {
			t.Fatalf("panel %d = %q, want filler %q", i, plan.Panels[i].Text, fillerSentences[i])
		}
	}
}

func TestNeverMoreThanEightPanels(t *testing.T) {
	req := domain.MangaRequest{
		URL:          "https://city.example.jp/b",
		Title:        "児童手当",
		Summary:      "一。二。三。四。五。六。七。八。九。",
		DocumentType: domain.DocumentTypeBenefit,
		Warnings:     []string{"警告1", "警告2", "警告3"},
		Benefit:      &domain.BenefitInfo{Amount: "A", Eligibility: "B", Deadline: "C"},
		Contact:      &domain.ContactInfo{Department: "D", Phone: "E"},
		Tips:         []string{"F"},
	}
	plan := BuildPanels(req)
	if len(plan.Panels) > 8 {
		t.Fatalf("panel count = %d", len(plan.Panels))
	}
	for i, p := range plan.Panels {
		if p.ID != i+1 {
			t.Fatalf("panel ids not sequential: %+v", plan.Panels)
		}
	}
}

func TestBuildPanelsDeterministic(t *testing.T) {
	req := domain.MangaRequest{
		URL:          "https://city.example.jp/p",
		Title:        "転入届",
		Summary:      "説明その一。説明その二。",
		DocumentType: domain.DocumentTypeProcedure,
		Warnings:     []string{"期限注意"},
		Procedure: &domain.ProcedureInfo{
			Steps:             []domain.ProcedureStep{{Order: 1, Action: "書類を用意"}},
			RequiredDocuments: []string{"本人確認書類"},
		},
		Tips: []string{"午前中は窓口が空いています"},
	}
	first := BuildPanels(req)
	for i := 0; i < 5; i++ {
		if got := BuildPanels(req); !reflect.DeepEqual(got, first) {
			t.Fatalf("plan differs between calls:\n%v\n%v", got, first)
		}
	}
}

func TestBlankWarningsSkipped(t *testing.T) {
	req := domain.MangaRequest{
		URL:      "https://city.example.jp/a",
		Title:    "お知らせ",
		Summary:  "内容。",
		Warnings: []string{"  ", "重要な警告"},
	}
	plan := BuildPanels(req)
	if plan.Panels[0].Text != "重要な警告" {
		t.Fatalf("blank warning not skipped: %v", panelTexts(plan))
	}
	for _, p := range plan.Panels {
		if strings.TrimSpace(p.Text) == "" {
			t.Fatalf("blank panel emitted: %v", panelTexts(plan))
		}
	}
}
