package layout

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/ByLCY/certforge/dsl"
)

// stubMeasurer 是一个最小实现，仅用于测试，避免引入渲染器造成循环依赖。
// 每个字符宽度为字号的一半，加粗时略宽。
type stubMeasurer struct{}

func (stubMeasurer) TextWidth(text string, style TextStyle) float64 {
	per := style.Size * 0.5
	if style.Emphasized {
		per = style.Size * 0.55
	}
	return float64(len([]rune(text))) * per
}

func buildTemplate(t *testing.T, src string, data any, opts ...func(*BuildOptions)) *Result {
	t.Helper()
	tpl, err := dsl.ParseString("test.cert", src)
	if err != nil {
		t.Fatalf("解析模板失败: %v", err)
	}
	o := BuildOptions{Measurer: stubMeasurer{}}
	for _, fn := range opts {
		fn(&o)
	}
	res, err := Build(tpl, data, o)
	if err != nil {
		t.Fatalf("布局计算失败: %v", err)
	}
	return res
}

const bonafideLike = `certificate Test v1 {
  meta {
    title: "Bonafide of ${student.name}"
    keywords: ["a", "b"]
  }
  page A4 margin 20mm {
    text align center size 16pt weight bold { "GOVERNMENT HIGH SCHOOL" }
    rule thickness 0.5mm
    spacer 10mm
    paragraph size 12pt line-height 2x {
      "This is to certify that "
      bold "${student.name}"
      " son of "
      bold "${student.father}"
      " is a bonafide student of this institution studying in class "
      bold "${student.class|ordinal}"
      " during the academic session 2026-27 and bears a good moral character."
    }
    signature left "Date: ${issued|date}" right "Principal"
  }
}`

var bonafideData = map[string]any{
	"student": map[string]any{"name": "Ravi Kumar", "father": "Suresh Kumar", "class": "9"},
	"issued":  "2026-10-19",
}

func TestBuildJustifiesParagraphAcrossContentWidth(t *testing.T) {
	res := buildTemplate(t, bonafideLike, bonafideData)
	page := res.Page
	if page.Width != 210 || page.Height != 297 {
		t.Fatalf("unexpected page size %gx%g", page.Width, page.Height)
	}
	if len(page.Paragraphs) != 1 {
		t.Fatalf("expected 1 paragraph, got %d", len(page.Paragraphs))
	}
	para := page.Paragraphs[0]
	if para.Constraints.MaxLineWidth != 170 || para.Constraints.StartX != 20 {
		t.Fatalf("unexpected constraints: %+v", para.Constraints)
	}
	fontSize := 12 * PtToMm
	if math.Abs(para.Constraints.LineHeight-2*fontSize) > 1e-9 {
		t.Fatalf("line height = %g", para.Constraints.LineHeight)
	}

	// 按 y 分行，检查非末行右边缘对齐到 190mm
	lines := map[float64][]PositionedWord{}
	var ys []float64
	for _, w := range para.Words {
		if _, ok := lines[w.Y]; !ok {
			ys = append(ys, w.Y)
		}
		lines[w.Y] = append(lines[w.Y], w)
	}
	if len(ys) < 2 {
		t.Fatalf("expected wrapping, got %d lines", len(ys))
	}
	for i, y := range ys[:len(ys)-1] {
		words := lines[y]
		if len(words) < 2 {
			continue
		}
		last := words[len(words)-1]
		right := last.X + stubMeasurer{}.TextWidth(last.Text, para.Style.WithEmphasis(last.Emphasized))
		if math.Abs(right-190) > 1e-6 {
			t.Fatalf("line %d right edge = %g, want 190", i, right)
		}
	}

	var names []string
	for _, w := range para.Words {
		if w.Emphasized {
			names = append(names, w.Text)
		}
	}
	if got := strings.Join(names, " "); got != "Ravi Kumar Suresh Kumar Ninth" {
		t.Fatalf("emphasized words = %q", got)
	}
	if para.EndY <= para.Constraints.StartY {
		t.Fatalf("paragraph EndY not advanced")
	}
}

func TestBuildTextsAndSignature(t *testing.T) {
	res := buildTemplate(t, bonafideLike, bonafideData)
	texts := res.Page.Texts
	if len(texts) != 3 {
		t.Fatalf("expected 3 texts, got %d", len(texts))
	}
	title := texts[0]
	if !title.Style.Emphasized || title.Align != "center" {
		t.Fatalf("unexpected title style: %+v", title)
	}
	if math.Abs((title.X-20)-(190-(title.X+title.Width))) > 1e-9 {
		t.Fatalf("title not centred: x=%g width=%g", title.X, title.Width)
	}
	if texts[0].Y != 20 {
		t.Fatalf("title should start at top margin, got %g", texts[0].Y)
	}

	left, right := texts[1], texts[2]
	if left.Content != "Date: 19/10/2026" || left.X != 20 {
		t.Fatalf("unexpected left signature: %+v", left)
	}
	if right.Content != "Principal" || math.Abs(right.X+right.Width-190) > 1e-9 {
		t.Fatalf("unexpected right signature: %+v", right)
	}
	if left.Y != right.Y || left.Y <= res.Page.Paragraphs[0].EndY-1e-9 {
		t.Fatalf("signature should sit below the paragraph on one line: %g %g", left.Y, right.Y)
	}

	if len(res.Page.Rules) != 1 || res.Page.Rules[0].Thickness != 0.5 {
		t.Fatalf("unexpected rules: %+v", res.Page.Rules)
	}
	if res.Meta.Title != "Bonafide of Ravi Kumar" || len(res.Meta.Keywords) != 2 {
		t.Fatalf("unexpected meta: %+v", res.Meta)
	}
	if res.Fonts["Body"] != DefaultFont {
		t.Fatalf("default font not registered: %+v", res.Fonts)
	}
}

func TestBuildFieldWrapsLongValue(t *testing.T) {
	src := `certificate F v1 {
  resources { font Serif { regular: "serif.ttf" bold: "serif-bold.ttf" } }
  page A5 landscape margin 10mm 15mm {
    field label "Name" value "${name}" tab 40mm font Serif
    field label "Reason for leaving" value "${reason}" tab 40mm line-height 6mm
    field label "Remarks" value "" tab 40mm
  }
}`
	data := map[string]any{
		"name":   "Meera",
		"reason": "Parents transferred to another district and the family is relocating before the next academic session begins",
	}
	res := buildTemplate(t, src, data)
	page := res.Page
	if page.Width != 210 || page.Height != 148 {
		t.Fatalf("landscape A5 expected, got %gx%g", page.Width, page.Height)
	}
	if page.Margin.Left != 15 || page.Margin.Top != 10 {
		t.Fatalf("unexpected margin %+v", page.Margin)
	}
	if len(page.Texts) != 3 || len(page.Paragraphs) != 2 {
		t.Fatalf("texts=%d paragraphs=%d", len(page.Texts), len(page.Paragraphs))
	}
	if page.Texts[0].Style.Font != "Serif" || page.Paragraphs[0].Style.Font != "Serif" {
		t.Fatalf("font attribute not applied")
	}

	reason := page.Paragraphs[1]
	if reason.Constraints.StartX != 15+40 || reason.Constraints.MaxLineWidth != 180-40 {
		t.Fatalf("unexpected value constraints: %+v", reason.Constraints)
	}
	if reason.EndY-reason.Constraints.StartY < 2*6-1e-9 {
		t.Fatalf("long value should wrap onto several lines")
	}
	for _, w := range reason.Words {
		if !w.Emphasized {
			t.Fatalf("field value should be emphasized: %+v", w)
		}
	}
	// 下一个字段从值结束处开始
	if page.Texts[2].Y < reason.EndY {
		t.Fatalf("next field overlaps wrapped value: %g < %g", page.Texts[2].Y, reason.EndY)
	}
}

func TestBuildLogsOverflow(t *testing.T) {
	src := `certificate O v1 { page A5 margin 10mm { spacer 300mm
  text { "below the page" } } }`
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	res := buildTemplate(t, src, nil, func(o *BuildOptions) { o.Logger = logger })
	if res.Page.ContentBottom <= res.Page.Height {
		t.Fatalf("content bottom should exceed page: %g", res.Page.ContentBottom)
	}
	if !strings.Contains(buf.String(), "overflows") {
		t.Fatalf("expected overflow warning, got %q", buf.String())
	}
}

func TestBuildErrors(t *testing.T) {
	cases := map[string]string{
		"no page":          `certificate X v1 { meta { title: "x" } }`,
		"unknown size":     `certificate X v1 { page B7 { text { "x" } } }`,
		"unknown command":  `certificate X v1 { page A4 { barcode value "1" } }`,
		"unknown font":     `certificate X v1 { page A4 { text font Missing { "x" } } }`,
		"empty paragraph":  `certificate X v1 { page A4 { paragraph { "   " } } }`,
		"bad size":         `certificate X v1 { page A4 { text size big { "x" } } }`,
		"huge margin":      `certificate X v1 { page A5 margin 80mm { text { "x" } } }`,
		"font without src": `certificate X v1 { resources { font Body { bold: "b.ttf" } } page A4 { text { "x" } } }`,
	}
	for name, src := range cases {
		tpl, err := dsl.ParseString(name, src)
		if err != nil {
			t.Fatalf("%s: parse: %v", name, err)
		}
		if _, err := Build(tpl, nil, BuildOptions{Measurer: stubMeasurer{}}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := Build(nil, nil, BuildOptions{Measurer: stubMeasurer{}}); err == nil {
		t.Fatalf("nil template should fail")
	}
	tpl, _ := dsl.ParseString("x", `certificate X v1 { page A4 { text { "x" } } }`)
	if _, err := Build(tpl, nil, BuildOptions{}); err == nil {
		t.Fatalf("missing measurer should fail")
	}
}

func TestWriteDebugJSON(t *testing.T) {
	res := buildTemplate(t, bonafideLike, bonafideData)
	path := filepath.Join(t.TempDir(), "layout.json")
	if err := WriteDebugJSON(res, path); err != nil {
		t.Fatalf("WriteDebugJSON: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded Result
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Page.Paragraphs) != 1 || len(decoded.Page.Paragraphs[0].Words) != len(res.Page.Paragraphs[0].Words) {
		t.Fatalf("debug JSON lost paragraph words")
	}
}

func TestBuildSkipsEmptyBoundText(t *testing.T) {
	src := `certificate E v1 { page A4 margin 20mm {
  text { "${school.address}" }
  text { "after" }
} }`
	res := buildTemplate(t, src, map[string]any{"school": map[string]any{"address": ""}})
	if len(res.Page.Texts) != 1 || res.Page.Texts[0].Content != "after" {
		t.Fatalf("unexpected texts: %+v", res.Page.Texts)
	}
	if res.Page.Texts[0].Y != 20 {
		t.Fatalf("skipped line should not take space, y=%g", res.Page.Texts[0].Y)
	}
}

func TestBuildWarnsOnOverwideWord(t *testing.T) {
	src := `certificate W v1 { page A4 margin 20mm {
  paragraph width 10mm { "Supercalifragilisticexpialidocious" }
} }`
	var buf bytes.Buffer
	res := buildTemplate(t, src, nil, func(o *BuildOptions) { o.Logger = slog.New(slog.NewTextHandler(&buf, nil)) })
	if len(res.Page.Paragraphs[0].Words) != 1 {
		t.Fatalf("over-wide word should still be placed")
	}
	if !strings.Contains(buf.String(), "word wider than line") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}

func TestBuildParagraphWeightIsDefaultEmphasis(t *testing.T) {
	src := `certificate P v1 { page A4 margin 20mm {
  paragraph weight bold {
    "Certified that "
    normal "${student.name}"
    " is enrolled."
  }
} }`
	res := buildTemplate(t, src, map[string]any{"student": map[string]any{"name": "Ravi"}})
	var plain, bold []string
	for _, w := range res.Page.Paragraphs[0].Words {
		if w.Emphasized {
			bold = append(bold, w.Text)
		} else {
			plain = append(plain, w.Text)
		}
	}
	if got := strings.Join(bold, " "); got != "Certified that is enrolled." {
		t.Fatalf("bold words = %q", got)
	}
	if got := strings.Join(plain, " "); got != "Ravi" {
		t.Fatalf("plain words = %q", got)
	}
}

var errFontMissing = errors.New("font file missing")

type failingRegistrar struct{ stubMeasurer }

func (failingRegistrar) RegisterFonts(map[string]FontResource) error { return errFontMissing }

func TestBuildErrorsKeepCause(t *testing.T) {
	tpl, err := dsl.ParseString("x", `certificate X v1 { page A4 { text { "x" } } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = Build(tpl, nil, BuildOptions{Measurer: failingRegistrar{}})
	if !errors.Is(err, errFontMissing) || errors.Cause(err) != errFontMissing {
		t.Fatalf("font error not wrapped: %v", err)
	}

	tpl, err = dsl.ParseString("y", `certificate Y v1 { page A4 { text size big { "x" } } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = Build(tpl, nil, BuildOptions{Measurer: stubMeasurer{}})
	if err == nil || !strings.Contains(err.Error(), "text 语句") {
		t.Fatalf("statement error should name the command: %v", err)
	}
}
