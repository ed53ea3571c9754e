package layout

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// 该文件实现段落排版核心：分词 → 贪心折行 → 两端对齐定位。
// 所有函数都是纯函数，不持有任何共享状态，可并发调用。

var (
	// ErrInvalidConstraints 表示行宽或行高不是正的有限数。
	ErrInvalidConstraints = errors.New("layout: invalid constraints")
	// ErrNilMeasure 表示未提供测量函数。
	ErrNilMeasure = errors.New("layout: nil measure func")
)

// StyledRun 是一段样式一致的文本；切片顺序即阅读顺序。
type StyledRun struct {
	Text       string `json:"text"`
	Emphasized bool   `json:"emphasized"`
}

// StyledWord 是折行的最小单位，内部不含空白。
type StyledWord struct {
	Text       string `json:"text"`
	Emphasized bool   `json:"emphasized"`
}

// Constraints 描述段落的行宽、行高与起始坐标，单位与 MeasureFunc 的返回值一致。
type Constraints struct {
	MaxLineWidth float64 `json:"maxLineWidth"`
	LineHeight   float64 `json:"lineHeight"`
	StartX       float64 `json:"startX"`
	StartY       float64 `json:"startY"`
}

// Validate 检查行宽与行高必须为正。
func (c Constraints) Validate() error {
	if !positiveFinite(c.MaxLineWidth) {
		return errors.Wrapf(ErrInvalidConstraints, "maxLineWidth=%g", c.MaxLineWidth)
	}
	if !positiveFinite(c.LineHeight) {
		return errors.Wrapf(ErrInvalidConstraints, "lineHeight=%g", c.LineHeight)
	}
	if math.IsNaN(c.StartX) || math.IsInf(c.StartX, 0) || math.IsNaN(c.StartY) || math.IsInf(c.StartY, 0) {
		return errors.Wrapf(ErrInvalidConstraints, "start=(%g, %g)", c.StartX, c.StartY)
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// MeasureFunc 返回 text 在给定样式下的宽度。
// 调用方需保证同一次排版内结果稳定，且样式只通过参数传入。
type MeasureFunc func(text string, emphasized bool) float64

// MeasuredLine 是折行后尚未定位的一行。
// NaturalWidth = Σ 词宽 + 每个词间空隙一个空格宽（空格按其后一个词的样式测量）。
type MeasuredLine struct {
	Words        []StyledWord `json:"words"`
	NaturalWidth float64      `json:"naturalWidth"`
}

// PositionedWord 是可直接绘制的词。
type PositionedWord struct {
	Text       string  `json:"text"`
	Emphasized bool    `json:"emphasized"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// Paragraph 是一次段落排版的输出，EndY 为最后一行之后的 y，供调用方继续向下排。
type Paragraph struct {
	Words []PositionedWord `json:"words"`
	EndY  float64          `json:"endY"`
	Lines int              `json:"lines"`
}

// Tokenize 按空白拆分每个 run，并给每个词打上所属 run 的样式。
// 只含空白的 run 不产生任何词。
func Tokenize(runs []StyledRun) []StyledWord {
	var words []StyledWord
	for _, run := range runs {
		for _, field := range strings.Fields(run.Text) {
			words = append(words, StyledWord{Text: field, Emphasized: run.Emphasized})
		}
	}
	return words
}

// PackLines 以贪心方式从左到右把词装入行，单词超宽时独占一行，不截断。
func PackLines(words []StyledWord, measure MeasureFunc, c Constraints) ([]MeasuredLine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if measure == nil {
		return nil, ErrNilMeasure
	}

	var (
		lines   []MeasuredLine
		current []StyledWord
		width   float64
	)
	for _, w := range words {
		wordWidth := measure(w.Text, w.Emphasized)
		if len(current) == 0 {
			current = append(current, w)
			width = wordWidth
			continue
		}
		add := wordWidth + measure(" ", w.Emphasized)
		if width+add <= c.MaxLineWidth {
			current = append(current, w)
			width += add
			continue
		}
		lines = append(lines, MeasuredLine{Words: current, NaturalWidth: width})
		current = []StyledWord{w}
		width = wordWidth
	}
	if len(current) > 0 {
		lines = append(lines, MeasuredLine{Words: current, NaturalWidth: width})
	}
	return lines, nil
}

// PositionLines 为每个词计算绘制坐标。
// 除最后一行和单词行外，其余行两端对齐：最后一个词的右边缘恰好落在 StartX+MaxLineWidth。
func PositionLines(lines []MeasuredLine, measure MeasureFunc, c Constraints) (Paragraph, error) {
	if err := c.Validate(); err != nil {
		return Paragraph{}, err
	}
	if measure == nil {
		return Paragraph{}, ErrNilMeasure
	}

	out := Paragraph{Lines: len(lines)}
	y := c.StartY
	for i, line := range lines {
		last := i == len(lines)-1
		if last || len(line.Words) < 2 {
			out.Words = placeLeft(out.Words, line.Words, measure, c.StartX, y)
		} else {
			out.Words = placeJustified(out.Words, line.Words, measure, c.StartX, c.MaxLineWidth, y)
		}
		y += c.LineHeight
	}
	out.EndY = y
	return out, nil
}

func placeLeft(dst []PositionedWord, words []StyledWord, measure MeasureFunc, x, y float64) []PositionedWord {
	for _, w := range words {
		dst = append(dst, PositionedWord{Text: w.Text, Emphasized: w.Emphasized, X: x, Y: y})
		x += measure(w.Text, w.Emphasized) + measure(" ", w.Emphasized)
	}
	return dst
}

func placeJustified(dst []PositionedWord, words []StyledWord, measure MeasureFunc, startX, maxWidth, y float64) []PositionedWord {
	widths := make([]float64, len(words))
	total := 0.0
	for i, w := range words {
		widths[i] = measure(w.Text, w.Emphasized)
		total += widths[i]
	}
	gap := (maxWidth - total) / float64(len(words)-1)

	x := startX
	for i, w := range words {
		dst = append(dst, PositionedWord{Text: w.Text, Emphasized: w.Emphasized, X: x, Y: y})
		x += widths[i] + gap
	}
	return dst
}

// LayoutParagraph 是对外唯一入口：Tokenize → PackLines → PositionLines。
func LayoutParagraph(runs []StyledRun, measure MeasureFunc, c Constraints) (Paragraph, error) {
	lines, err := PackLines(Tokenize(runs), measure, c)
	if err != nil {
		return Paragraph{}, err
	}
	return PositionLines(lines, measure, c)
}
