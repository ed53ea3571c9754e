package layout

import (
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

// tableMeasure 按词表返回宽度，空格固定 10，未登记的词按每个字符 5 计算。
func tableMeasure(widths map[string]float64) MeasureFunc {
	return func(text string, emphasized bool) float64 {
		if text == " " {
			return 10
		}
		if w, ok := widths[text]; ok {
			return w
		}
		return float64(len([]rune(text))) * 5
	}
}

// styledMeasure 让粗体字符更宽，空格也随样式变化。
func styledMeasure(text string, emphasized bool) float64 {
	per := 5.0
	if emphasized {
		per = 6
	}
	if text == " " {
		return per / 2
	}
	return float64(len([]rune(text))) * per
}

var certifiedRuns = []StyledRun{
	{Text: "Certified that ", Emphasized: false},
	{Text: "John Doe", Emphasized: true},
	{Text: " is enrolled.", Emphasized: false},
}

var certifiedWidths = map[string]float64{
	"Certified": 50, "that": 30, "John": 25, "Doe": 25, "is": 15, "enrolled.": 45,
}

func TestTokenizePreservesOrderAndStyle(t *testing.T) {
	words := Tokenize(certifiedRuns)
	require.Equal(t, []StyledWord{
		{Text: "Certified"},
		{Text: "that"},
		{Text: "John", Emphasized: true},
		{Text: "Doe", Emphasized: true},
		{Text: "is"},
		{Text: "enrolled."},
	}, words)
}

func TestTokenizeWhitespaceOnlyRunContributesNothing(t *testing.T) {
	words := Tokenize([]StyledRun{
		{Text: "  \t\n ", Emphasized: true},
		{Text: "a\t\tb\n c"},
		{Text: "", Emphasized: true},
	})
	require.Equal(t, []StyledWord{{Text: "a"}, {Text: "b"}, {Text: "c"}}, words)
	assert.Empty(t, Tokenize(nil))
}

func TestTokenizeIdempotent(t *testing.T) {
	runs := []StyledRun{
		{Text: "  This   is\tto certify "},
		{Text: "Asha  Verma", Emphasized: true},
		{Text: "   "},
		{Text: "\nwas born on", Emphasized: false},
	}
	first := Tokenize(runs)

	// 每个原始 run 重新拼接为一个 run（单空格），再分词应得到相同结果。
	var rebuilt []StyledRun
	for _, run := range runs {
		rebuilt = append(rebuilt, StyledRun{
			Text:       strings.Join(strings.Fields(run.Text), " "),
			Emphasized: run.Emphasized,
		})
	}
	require.Equal(t, first, Tokenize(rebuilt))
}

func TestPackLinesCertifiedScenario(t *testing.T) {
	measure := tableMeasure(certifiedWidths)
	c := Constraints{MaxLineWidth: 120, LineHeight: 8}

	lines, err := PackLines(Tokenize(certifiedRuns), measure, c)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, []string{"Certified", "that"}, lineTexts(lines[0]))
	assert.InDelta(t, 90, lines[0].NaturalWidth, eps)
	assert.Equal(t, []string{"John", "Doe", "is"}, lineTexts(lines[1]))
	assert.InDelta(t, 85, lines[1].NaturalWidth, eps)
	assert.Equal(t, []string{"enrolled."}, lineTexts(lines[2]))
	assert.InDelta(t, 45, lines[2].NaturalWidth, eps)
}

func TestLayoutParagraphCertifiedScenario(t *testing.T) {
	measure := tableMeasure(certifiedWidths)
	c := Constraints{MaxLineWidth: 120, LineHeight: 8, StartX: 20, StartY: 100}

	p, err := LayoutParagraph(certifiedRuns, measure, c)
	require.NoError(t, err)
	require.Len(t, p.Words, 6)

	want := []PositionedWord{
		// 第一行：40 的额外空间分给 1 个间隙
		{Text: "Certified", X: 20, Y: 100},
		{Text: "that", X: 20 + 50 + 40, Y: 100},
		// 第二行：55 的额外空间分给 2 个间隙，每个 27.5
		{Text: "John", Emphasized: true, X: 20, Y: 108},
		{Text: "Doe", Emphasized: true, X: 20 + 25 + 27.5, Y: 108},
		{Text: "is", X: 20 + 25 + 27.5 + 25 + 27.5, Y: 108},
		// 最后一行不拉伸
		{Text: "enrolled.", X: 20, Y: 116},
	}
	for i := range want {
		assert.Equal(t, want[i].Text, p.Words[i].Text)
		assert.Equal(t, want[i].Emphasized, p.Words[i].Emphasized)
		assert.InDelta(t, want[i].X, p.Words[i].X, eps, "word %d x", i)
		assert.InDelta(t, want[i].Y, p.Words[i].Y, eps, "word %d y", i)
	}
	assert.InDelta(t, 124, p.EndY, eps)
	assert.Equal(t, 3, p.Lines)
}

func TestSingleWordParagraph(t *testing.T) {
	c := Constraints{MaxLineWidth: 300, LineHeight: 12, StartX: 7, StartY: 3}
	p, err := LayoutParagraph([]StyledRun{{Text: "OnlyWord"}}, styledMeasure, c)
	require.NoError(t, err)
	require.Equal(t, []PositionedWord{{Text: "OnlyWord", X: 7, Y: 3}}, p.Words)
	assert.InDelta(t, 15, p.EndY, eps)
}

func TestEmptyParagraph(t *testing.T) {
	c := Constraints{MaxLineWidth: 100, LineHeight: 10, StartY: 42}
	p, err := LayoutParagraph([]StyledRun{{Text: "   "}}, styledMeasure, c)
	require.NoError(t, err)
	assert.Empty(t, p.Words)
	assert.Zero(t, p.Lines)
	assert.InDelta(t, 42, p.EndY, eps)

	lines, err := PackLines(nil, styledMeasure, c)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestOverwideWordSitsAloneOnItsLine(t *testing.T) {
	measure := tableMeasure(map[string]float64{"a": 10, "Supercalifragilistic": 500, "b": 10})
	c := Constraints{MaxLineWidth: 100, LineHeight: 10}

	lines, err := PackLines(Tokenize([]StyledRun{{Text: "a Supercalifragilistic b"}}), measure, c)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"a"}, lineTexts(lines[0]))
	assert.Equal(t, []string{"Supercalifragilistic"}, lineTexts(lines[1]))
	assert.InDelta(t, 500, lines[1].NaturalWidth, eps)
	assert.Equal(t, []string{"b"}, lineTexts(lines[2]))

	// 首词即超宽时同样独占一行，且不会产生空行。
	lines, err = PackLines(Tokenize([]StyledRun{{Text: "Supercalifragilistic a b"}}), measure, c)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"Supercalifragilistic"}, lineTexts(lines[0]))
	assert.Equal(t, []string{"a", "b"}, lineTexts(lines[1]))
}

func TestSpaceMeasuredWithIncomingWordStyle(t *testing.T) {
	// 普通空格 2.5，粗体空格 3；"ab"=10，粗体 "cd"=12
	c := Constraints{MaxLineWidth: 25, LineHeight: 1}
	words := []StyledWord{{Text: "ab"}, {Text: "cd", Emphasized: true}}
	lines, err := PackLines(words, styledMeasure, c)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.InDelta(t, 10+3+12, lines[0].NaturalWidth, eps)

	c.MaxLineWidth = 24.9
	lines, err = PackLines(words, styledMeasure, c)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestLineWidthBound(t *testing.T) {
	text := "This is to certify that the student named below has been on the rolls of this institution " +
		"during the academic year and that the particulars recorded here are true to the best of our knowledge"
	runs := []StyledRun{{Text: text}, {Text: "Asha Kumari Verma", Emphasized: true}, {Text: "of class Eight."}}
	for _, width := range []float64{40, 73.5, 120, 333} {
		c := Constraints{MaxLineWidth: width, LineHeight: 5}
		lines, err := PackLines(Tokenize(runs), styledMeasure, c)
		require.NoError(t, err)
		for i, line := range lines {
			if len(line.Words) == 1 {
				continue
			}
			assert.LessOrEqual(t, recomputeNatural(line, styledMeasure), width+eps, "width %g line %d", width, i)
			assert.InDelta(t, recomputeNatural(line, styledMeasure), line.NaturalWidth, eps)
		}
	}
}

func TestJustificationExactnessAndLastLineExemption(t *testing.T) {
	runs := []StyledRun{
		{Text: "This is to certify that "},
		{Text: "Ravi Shankar Prasad", Emphasized: true},
		{Text: " son of "},
		{Text: "Mohan Prasad", Emphasized: true},
		{Text: " is a bonafide student of this school studying in class "},
		{Text: "Ninth", Emphasized: true},
		{Text: " during the session 2025-26."},
	}
	c := Constraints{MaxLineWidth: 150, LineHeight: 7, StartX: 12.5, StartY: 30}
	lines, err := PackLines(Tokenize(runs), styledMeasure, c)
	require.NoError(t, err)
	require.Greater(t, len(lines), 2)

	p, err := PositionLines(lines, styledMeasure, c)
	require.NoError(t, err)

	offset := 0
	for i, line := range lines {
		placed := p.Words[offset : offset+len(line.Words)]
		offset += len(line.Words)
		lastWord := placed[len(placed)-1]
		right := lastWord.X + styledMeasure(lastWord.Text, lastWord.Emphasized)

		if i < len(lines)-1 && len(placed) > 1 {
			assert.InDelta(t, c.StartX+c.MaxLineWidth, right, 1e-9, "line %d not flush right", i)
			continue
		}
		// 最后一行与单词行：左对齐，词间恰好一个空格（按前一个词的样式）
		assert.InDelta(t, c.StartX, placed[0].X, eps)
		for j := 1; j < len(placed); j++ {
			prev := placed[j-1]
			want := prev.X + styledMeasure(prev.Text, prev.Emphasized) + styledMeasure(" ", prev.Emphasized)
			assert.InDelta(t, want, placed[j].X, eps)
		}
	}
}

func TestLongLastLineNotStretched(t *testing.T) {
	measure := tableMeasure(map[string]float64{"aa": 40, "bb": 40, "cc": 40})
	// 三个词装入一行（自然宽度 140，余 20），作为最后一行仍不拉伸。
	c := Constraints{MaxLineWidth: 160, LineHeight: 1}
	p, err := LayoutParagraph([]StyledRun{{Text: "aa bb cc"}}, measure, c)
	require.NoError(t, err)
	require.Len(t, p.Words, 3)
	assert.InDelta(t, 0, p.Words[0].X, eps)
	assert.InDelta(t, 50, p.Words[1].X, eps)
	assert.InDelta(t, 100, p.Words[2].X, eps)
}

func TestVerticalAdvanceAndOrder(t *testing.T) {
	runs := []StyledRun{
		{Text: "Date of birth according to the admission register in figures "},
		{Text: "15/08/2010", Emphasized: true},
		{Text: " and in words "},
		{Text: "Fifteenth August Two Thousand Ten", Emphasized: true},
	}
	c := Constraints{MaxLineWidth: 90, LineHeight: 6.5, StartX: 0, StartY: 10}
	p, err := LayoutParagraph(runs, styledMeasure, c)
	require.NoError(t, err)

	words := Tokenize(runs)
	require.Len(t, p.Words, len(words))
	lineIndex := 0
	for i, pw := range p.Words {
		assert.Equal(t, words[i].Text, pw.Text)
		assert.Equal(t, words[i].Emphasized, pw.Emphasized)
		if i > 0 {
			prev := p.Words[i-1]
			require.GreaterOrEqual(t, pw.Y, prev.Y)
			if pw.Y > prev.Y {
				assert.InDelta(t, c.LineHeight, pw.Y-prev.Y, eps)
				lineIndex++
			}
		}
		assert.InDelta(t, c.StartY+float64(lineIndex)*c.LineHeight, pw.Y, eps)
	}
	assert.Equal(t, lineIndex+1, p.Lines)
	assert.InDelta(t, c.StartY+c.LineHeight*float64(p.Lines), p.EndY, eps)
}

func TestInvalidConstraintsFailFast(t *testing.T) {
	cases := []Constraints{
		{MaxLineWidth: 0, LineHeight: 1},
		{MaxLineWidth: -5, LineHeight: 1},
		{MaxLineWidth: 10, LineHeight: 0},
		{MaxLineWidth: 10, LineHeight: -1},
		{MaxLineWidth: math.NaN(), LineHeight: 1},
		{MaxLineWidth: math.Inf(1), LineHeight: 1},
		{MaxLineWidth: 10, LineHeight: 1, StartX: math.NaN()},
	}
	for _, c := range cases {
		_, err := LayoutParagraph(certifiedRuns, styledMeasure, c)
		assert.True(t, errors.Is(err, ErrInvalidConstraints), "constraints %+v: %v", c, err)

		_, err = PackLines(nil, styledMeasure, c)
		assert.True(t, errors.Is(err, ErrInvalidConstraints))

		_, err = PositionLines(nil, styledMeasure, c)
		assert.True(t, errors.Is(err, ErrInvalidConstraints))
	}

	_, err := LayoutParagraph(certifiedRuns, nil, Constraints{MaxLineWidth: 1, LineHeight: 1})
	assert.True(t, errors.Is(err, ErrNilMeasure))
}

func TestMeasurePanicPropagates(t *testing.T) {
	boom := func(string, bool) float64 { panic("measure failed") }
	assert.PanicsWithValue(t, "measure failed", func() {
		_, _ = LayoutParagraph(certifiedRuns, boom, Constraints{MaxLineWidth: 10, LineHeight: 1})
	})
}

func TestLayoutParagraphConcurrent(t *testing.T) {
	measure := tableMeasure(certifiedWidths)
	c := Constraints{MaxLineWidth: 120, LineHeight: 8}
	want, err := LayoutParagraph(certifiedRuns, measure, c)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Paragraph, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = LayoutParagraph(certifiedRuns, measure, c)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func lineTexts(line MeasuredLine) []string {
	out := make([]string, 0, len(line.Words))
	for _, w := range line.Words {
		out = append(out, w.Text)
	}
	return out
}

func recomputeNatural(line MeasuredLine, measure MeasureFunc) float64 {
	total := 0.0
	for i, w := range line.Words {
		total += measure(w.Text, w.Emphasized)
		if i > 0 {
			total += measure(" ", w.Emphasized)
		}
	}
	return total
}
