package layout

import (
	"log/slog"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/ByLCY/certforge/binding"
	"github.com/ByLCY/certforge/dsl"
)

const (
	blockSpacing    = 3.0
	defaultFont     = "Body"
	defaultFontSize = 12 * PtToMm
	defaultRule     = 0.3
)

// DefaultFont 在模板未声明字体时使用内置的 Latin Modern Roman。
var DefaultFont = FontResource{
	Name:    defaultFont,
	Regular: "embed:lmroman10-regular",
	Bold:    "embed:lmroman10-bold",
}

// Build 根据证书模板与绑定数据生成单页布局结果。
func Build(tpl *dsl.Template, data any, opts BuildOptions) (*Result, error) {
	if tpl == nil {
		return nil, errors.New("模板为空")
	}
	if opts.Measurer == nil {
		return nil, errors.New("layout: 缺少测量后端 Measurer")
	}

	fonts, err := collectFonts(tpl)
	if err != nil {
		return nil, err
	}
	if reg, ok := opts.Measurer.(FontRegistrar); ok {
		if err := reg.RegisterFonts(fonts); err != nil {
			return nil, errors.Wrap(err, "注册字体失败")
		}
	}
	meta := collectMeta(tpl, data)
	section := tpl.Page()
	if section == nil {
		return nil, errors.Errorf("模板 %s 中缺少 page 段落", tpl.Name)
	}
	if section.Block == nil {
		return nil, errors.New("page 段落缺少内容")
	}

	width, height, err := resolvePageSize(section.Spec)
	if err != nil {
		return nil, err
	}
	margin, err := resolveMargin(section.Spec.Params)
	if err != nil {
		return nil, err
	}
	if margin.Left+margin.Right >= width || margin.Top+margin.Bottom >= height {
		return nil, errors.Errorf("页边距 %+v 超出纸张尺寸 %gx%g", margin, width, height)
	}

	f := &flow{
		page: Page{
			Width:  width,
			Height: height,
			Margin: margin,
		},
		x:        margin.Left,
		y:        margin.Top,
		width:    width - margin.Left - margin.Right,
		bottom:   height - margin.Bottom,
		data:     data,
		fonts:    fonts,
		measurer: opts.Measurer,
		logger:   opts.logger(),
	}
	for _, stmt := range section.Block.Statements {
		if stmt.Command == nil {
			continue
		}
		if err := f.handle(stmt.Command); err != nil {
			return nil, errors.Wrapf(err, "%s: %s 语句", stmt.Command.Pos, stmt.Command.Name)
		}
	}
	f.page.ContentBottom = f.y
	if f.y > f.bottom {
		f.logger.Warn("certificate content overflows bottom margin",
			"template", tpl.Name, "contentBottom", f.y, "limit", f.bottom)
	}

	return &Result{
		Page:  f.page,
		Fonts: fonts,
		Meta:  meta,
	}, nil
}

// flow 是自上而下的排版游标。
type flow struct {
	page     Page
	x, y     float64
	width    float64
	bottom   float64
	data     any
	fonts    map[string]FontResource
	measurer Measurer
	logger   *slog.Logger
}

func (f *flow) handle(cmd *dsl.Command) error {
	switch strings.ToLower(cmd.Name) {
	case "text":
		return f.text(cmd)
	case "paragraph", "para":
		return f.paragraph(cmd)
	case "field":
		return f.field(cmd)
	case "rule", "line":
		return f.rule(cmd)
	case "spacer", "space":
		return f.spacer(cmd)
	case "image":
		return f.image(cmd)
	case "signature":
		return f.signature(cmd)
	default:
		return errors.New("未知命令")
	}
}

// text 输出一行文本，按 align 计算 X，不折行。
func (f *flow) text(cmd *dsl.Command) error {
	_, attrs := cmd.Attrs()
	style, lineHeight, err := f.resolveStyle(attrs)
	if err != nil {
		return err
	}
	raw := cmd.Block.Text()
	if strings.TrimSpace(raw) == "" {
		return errors.New("缺少文本内容")
	}
	// 绑定后为空（例如学校未填写地址）时整行省略，不占位
	content := binding.Interpolate(raw, f.data)
	if strings.TrimSpace(content) == "" {
		return nil
	}
	tb := f.placeText(content, style, lineHeight, attrs["align"], f.x, f.width)
	f.page.Texts = append(f.page.Texts, tb)
	f.y += lineHeight + f.spacingAfter(attrs)
	return nil
}

func (f *flow) placeText(content string, style TextStyle, lineHeight float64, align string, x, width float64) TextBox {
	w := f.measurer.TextWidth(content, style)
	return TextBox{
		Content:    content,
		X:          x + alignOffset(width, w, align),
		Y:          f.y,
		Width:      w,
		LineHeight: lineHeight,
		Style:      style,
		Align:      normalizeAlign(align),
	}
}

// paragraph 将多段样式文本交给段落引擎，两端对齐。
func (f *flow) paragraph(cmd *dsl.Command) error {
	_, attrs := cmd.Attrs()
	style, lineHeight, err := f.resolveStyle(attrs)
	if err != nil {
		return err
	}
	runs := collectRuns(cmd.Block, f.data, style.Emphasized)
	if len(Tokenize(runs)) == 0 {
		return errors.New("段落缺少文本")
	}

	width := f.width
	if v := attrs["width"]; v != "" {
		l, err := ParseLength(v)
		if err != nil {
			return err
		}
		if w := l.MM(f.width); w > 0 && w <= f.width {
			width = w
		}
	}
	indent := 0.0
	if v := attrs["indent"]; v != "" {
		l, err := ParseLength(v)
		if err != nil {
			return err
		}
		indent = math.Min(l.MM(width), width/2)
	}

	box, err := f.layoutRuns(runs, style, Constraints{
		MaxLineWidth: width - indent,
		LineHeight:   lineHeight,
		StartX:       f.x + indent,
		StartY:       f.y,
	})
	if err != nil {
		return err
	}
	f.page.Paragraphs = append(f.page.Paragraphs, box)
	f.y = box.EndY + f.spacingAfter(attrs)
	return nil
}

func (f *flow) layoutRuns(runs []StyledRun, style TextStyle, c Constraints) (ParagraphBox, error) {
	style.Emphasized = false
	measure := MeasureFor(f.measurer, style)
	p, err := LayoutParagraph(runs, measure, c)
	if err != nil {
		return ParagraphBox{}, err
	}
	for _, w := range p.Words {
		if width := measure(w.Text, w.Emphasized); width > c.MaxLineWidth {
			f.logger.Warn("word wider than line", "word", w.Text, "width", width, "limit", c.MaxLineWidth)
		}
	}
	return ParagraphBox{
		Style:       style,
		Constraints: c,
		Words:       p.Words,
		EndY:        p.EndY,
	}, nil
}

// field 输出“标签 ... 值”一行：标签常规字重，值默认加粗并在制表位处开始；
// 值过长时在剩余宽度内折行并两端对齐。
func (f *flow) field(cmd *dsl.Command) error {
	_, attrs := cmd.Attrs()
	style, lineHeight, err := f.resolveStyle(attrs)
	if err != nil {
		return err
	}
	label := binding.Interpolate(attrs["label"], f.data)
	value := binding.Interpolate(attrs["value"], f.data)
	if label == "" {
		return errors.New("field 缺少 label")
	}

	tab := f.width * 0.4
	if v := attrs["tab"]; v != "" {
		l, err := ParseLength(v)
		if err != nil {
			return err
		}
		tab = l.MM(f.width)
	}
	if tab <= 0 || tab >= f.width {
		return errors.Errorf("制表位 %g 超出内容宽度 %g", tab, f.width)
	}

	labelStyle := style.WithEmphasis(false)
	f.page.Texts = append(f.page.Texts, f.placeText(label, labelStyle, lineHeight, "left", f.x, tab))
	end := f.y + lineHeight

	if strings.TrimSpace(value) != "" {
		emphasized := strings.ToLower(attrs["weight"]) != "normal"
		box, err := f.layoutRuns([]StyledRun{{Text: value, Emphasized: emphasized}}, style, Constraints{
			MaxLineWidth: f.width - tab,
			LineHeight:   lineHeight,
			StartX:       f.x + tab,
			StartY:       f.y,
		})
		if err != nil {
			return err
		}
		f.page.Paragraphs = append(f.page.Paragraphs, box)
		end = math.Max(end, box.EndY)
	}
	f.y = end + f.spacingAfter(attrs)
	return nil
}

func (f *flow) rule(cmd *dsl.Command) error {
	_, attrs := cmd.Attrs()
	thickness := defaultRule
	if v := attrs["thickness"]; v != "" {
		l, err := ParseLength(v)
		if err != nil {
			return err
		}
		thickness = l.MM(0)
	}
	width := f.width
	if v := attrs["width"]; v != "" {
		l, err := ParseLength(v)
		if err != nil {
			return err
		}
		width = math.Min(l.MM(f.width), f.width)
	}
	x := f.x + alignOffset(f.width, width, attrs["align"])
	y := f.y + thickness/2
	f.page.Rules = append(f.page.Rules, Rule{X1: x, Y1: y, X2: x + width, Y2: y, Thickness: thickness})
	f.y += thickness + f.spacingAfter(attrs)
	return nil
}

func (f *flow) spacer(cmd *dsl.Command) error {
	positional, attrs := cmd.Attrs()
	raw := attrs["height"]
	if raw == "" && positional != nil {
		raw = positional.Value
	}
	if raw == "" {
		f.y += blockSpacing
		return nil
	}
	l, err := ParseLength(raw)
	if err != nil {
		return err
	}
	f.y += l.MM(f.bottom - f.page.Margin.Top)
	return nil
}

func (f *flow) image(cmd *dsl.Command) error {
	_, attrs := cmd.Attrs()
	src := binding.Interpolate(attrs["src"], f.data)
	if src == "" {
		return errors.New("image 缺少 src")
	}
	width := f.width * 0.2
	if v := attrs["width"]; v != "" {
		l, err := ParseLength(v)
		if err != nil {
			return err
		}
		width = math.Min(l.MM(f.width), f.width)
	}
	height := width
	if v := attrs["height"]; v != "" {
		l, err := ParseLength(v)
		if err != nil {
			return err
		}
		height = l.MM(f.width)
	}
	f.page.Images = append(f.page.Images, ImageBox{
		Path:   src,
		X:      f.x + alignOffset(f.width, width, attrs["align"]),
		Y:      f.y,
		Width:  width,
		Height: height,
	})
	f.y += height + f.spacingAfter(attrs)
	return nil
}

// signature 在同一行放置左/中/右三个签名标签。
func (f *flow) signature(cmd *dsl.Command) error {
	_, attrs := cmd.Attrs()
	style, lineHeight, err := f.resolveStyle(attrs)
	if err != nil {
		return err
	}
	placed := 0
	for _, align := range []string{"left", "center", "right"} {
		content := binding.Interpolate(attrs[align], f.data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		f.page.Texts = append(f.page.Texts, f.placeText(content, style, lineHeight, align, f.x, f.width))
		placed++
	}
	if placed == 0 {
		return errors.New("signature 至少需要 left/center/right 之一")
	}
	f.y += lineHeight + f.spacingAfter(attrs)
	return nil
}

// resolveStyle 解析 font/size/weight/line-height。
func (f *flow) resolveStyle(attrs map[string]string) (TextStyle, float64, error) {
	style := TextStyle{Font: defaultFont, Size: defaultFontSize}
	if v := attrs["font"]; v != "" {
		if _, ok := f.fonts[v]; !ok {
			return style, 0, errors.Errorf("未声明的字体 %s", v)
		}
		style.Font = v
	}
	if v := attrs["size"]; v != "" {
		l, err := ParseLength(v)
		if err != nil {
			return style, 0, err
		}
		if l.Unit == UnitNone {
			l.Unit = UnitPT
		}
		style.Size = l.MM(0)
		if style.Size <= 0 {
			return style, 0, errors.Errorf("字号必须为正：%s", v)
		}
	}
	switch strings.ToLower(attrs["weight"]) {
	case "bold", "strong":
		style.Emphasized = true
	}
	spec := LineHeightSpec{}
	if v := attrs["line-height"]; v != "" {
		s, err := ParseLineHeight(v)
		if err != nil {
			return style, 0, err
		}
		spec = s
	}
	return style, spec.Resolve(style.Size), nil
}

func (f *flow) spacingAfter(attrs map[string]string) float64 {
	if v := attrs["after"]; v != "" {
		if l, err := ParseLength(v); err == nil {
			return l.MM(0)
		}
	}
	return blockSpacing
}

// collectRuns 将段落块中的字符串与 bold/normal 命令转换为 StyledRun，并完成数据绑定。
// 裸字符串沿用段落的 weight，bold/normal 命令显式覆盖。
func collectRuns(block *dsl.Block, data any, emphasized bool) []StyledRun {
	if block == nil {
		return nil
	}
	var runs []StyledRun
	for _, stmt := range block.Statements {
		switch {
		case stmt.Text != nil:
			runs = append(runs, StyledRun{Text: binding.Interpolate(string(stmt.Text.Value), data), Emphasized: emphasized})
		case stmt.Command != nil:
			var bold bool
			switch strings.ToLower(stmt.Command.Name) {
			case "bold", "b", "strong":
				bold = true
			case "normal", "span":
			default:
				continue
			}
			var sb strings.Builder
			for _, arg := range stmt.Command.Args {
				if arg.IsString() {
					sb.WriteString(arg.Value)
				}
			}
			sb.WriteString(stmt.Command.Block.Text())
			runs = append(runs, StyledRun{Text: binding.Interpolate(sb.String(), data), Emphasized: bold})
		}
	}
	return runs
}

func collectFonts(tpl *dsl.Template) (map[string]FontResource, error) {
	fonts := map[string]FontResource{defaultFont: DefaultFont}
	for _, cmd := range tpl.Resources("font") {
		name, _ := cmd.Attrs()
		if name == nil {
			return nil, errors.Errorf("%s: font 缺少名称", cmd.Pos)
		}
		fields := cmd.Block.Fields()
		font := FontResource{
			Name:    name.Value,
			Regular: fields["regular"].Text(),
			Bold:    fields["bold"].Text(),
		}
		if font.Regular == "" {
			font.Regular = fields["src"].Text()
		}
		if font.Regular == "" {
			return nil, errors.Errorf("%s: 字体 %s 缺少 regular", cmd.Pos, font.Name)
		}
		fonts[font.Name] = font
	}
	return fonts, nil
}

// collectMeta 读取 meta 段；标题、作者、主题与关键词都支持数据绑定。
func collectMeta(tpl *dsl.Template, data any) DocumentMeta {
	meta := DocumentMeta{Creator: "certforge"}
	for _, field := range tpl.MetaFields() {
		val := field.Value
		switch strings.ToLower(field.Key) {
		case "title":
			meta.Title = binding.Interpolate(val.Text(), data)
		case "author":
			meta.Author = binding.Interpolate(val.Text(), data)
		case "subject":
			meta.Subject = binding.Interpolate(val.Text(), data)
		case "creator":
			meta.Creator = val.Text()
		case "keywords":
			for _, kw := range val.Strings() {
				if kw = strings.TrimSpace(binding.Interpolate(kw, data)); kw != "" {
					meta.Keywords = append(meta.Keywords, kw)
				}
			}
		}
	}
	return meta
}

var pagePresets = map[string][2]float64{
	"A4":     {210, 297},
	"A5":     {148, 210},
	"LETTER": {215.9, 279.4},
	"LEGAL":  {215.9, 355.6},
}

func resolvePageSize(spec dsl.PageSpec) (float64, float64, error) {
	base, ok := pagePresets[strings.ToUpper(spec.Size)]
	if !ok {
		return 0, 0, errors.Errorf("暂不支持的纸张尺寸：%s", spec.Size)
	}
	width, height := base[0], base[1]
	for _, token := range spec.Params {
		if strings.EqualFold(token.Value, "landscape") {
			width, height = height, width
		}
	}
	return width, height, nil
}

// resolveMargin 解析 margin 后的 1~4 个长度，语义同 CSS：上 右 下 左。
func resolveMargin(params []*dsl.Arg) (Margin, error) {
	margin := Margin{Top: 20, Right: 20, Bottom: 20, Left: 20}
	for i := 0; i < len(params); i++ {
		if params[i].Value != "margin" {
			continue
		}
		var vals []float64
		for j := i + 1; j < len(params) && len(vals) < 4; j++ {
			if params[j].Type != "Number" {
				break
			}
			l, err := ParseLength(params[j].Value)
			if err != nil {
				return margin, err
			}
			vals = append(vals, l.MM(0))
		}
		switch len(vals) {
		case 0:
			return margin, errors.New("margin 缺少数值")
		case 1:
			margin = Margin{Top: vals[0], Right: vals[0], Bottom: vals[0], Left: vals[0]}
		case 2:
			margin = Margin{Top: vals[0], Right: vals[1], Bottom: vals[0], Left: vals[1]}
		case 3:
			margin = Margin{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[1]}
		default:
			margin = Margin{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[3]}
		}
	}
	return margin, nil
}

func normalizeAlign(align string) string {
	switch strings.ToLower(strings.TrimSpace(align)) {
	case "center", "centre", "middle":
		return "center"
	case "right", "end":
		return "right"
	default:
		return "left"
	}
}

// alignOffset 返回宽度为 width 的元素在容器内的水平偏移；超宽时左对齐。
func alignOffset(container, width float64, align string) float64 {
	if container <= width {
		return 0
	}
	switch normalizeAlign(align) {
	case "center":
		return (container - width) / 2
	case "right":
		return container - width
	default:
		return 0
	}
}
