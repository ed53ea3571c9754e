package layout

// 该文件定义证书布局结果，供渲染器与调试 JSON 共用。
// 坐标单位均为毫米，原点在页面左上角，y 为行顶部（渲染器自行加上字体上升部得到基线）。

// Result 保存布局后的页面、字体与元信息。
type Result struct {
	Page  Page                    `json:"page"`
	Fonts map[string]FontResource `json:"fonts"`
	Meta  DocumentMeta            `json:"meta"`
}

// FontResource 描述一套字体：常规与加粗两种字重，src 可以是 embed:名称 或文件路径。
type FontResource struct {
	Name    string `json:"name"`
	Regular string `json:"regular"`
	Bold    string `json:"bold"`
}

// Src 返回给定样式对应的字体来源；缺少粗体时回退到常规字重。
func (f FontResource) Src(emphasized bool) string {
	if emphasized && f.Bold != "" {
		return f.Bold
	}
	return f.Regular
}

// TextStyle 显式描述一次测量或绘制所用的样式，不依赖任何“当前字体”状态。
type TextStyle struct {
	Font       string  `json:"font"`
	Size       float64 `json:"size"` // mm
	Emphasized bool    `json:"emphasized,omitempty"`
}

// WithEmphasis 返回切换字重后的副本。
func (s TextStyle) WithEmphasis(emphasized bool) TextStyle {
	s.Emphasized = emphasized
	return s
}

// Page 记录页面尺寸、边距与可直接绘制的元素。
type Page struct {
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Margin     Margin         `json:"margin"`
	Texts      []TextBox      `json:"texts"`
	Paragraphs []ParagraphBox `json:"paragraphs"`
	Rules      []Rule         `json:"rules,omitempty"`
	Images     []ImageBox     `json:"images,omitempty"`
	// ContentBottom 为最后一个元素之后的 y，超过 Height-Margin.Bottom 即溢出。
	ContentBottom float64 `json:"contentBottom"`
}

// Margin 以毫米为单位。
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// TextBox 是单行文本，X 已根据对齐方式计算好。
type TextBox struct {
	Content    string    `json:"content"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Width      float64   `json:"width"`
	LineHeight float64   `json:"lineHeight"`
	Style      TextStyle `json:"style"`
	Align      string    `json:"align,omitempty"`
}

// ParagraphBox 是两端对齐后的段落，每个词已有绘制坐标。
type ParagraphBox struct {
	Style       TextStyle        `json:"style"`
	Constraints Constraints      `json:"constraints"`
	Words       []PositionedWord `json:"words"`
	EndY        float64          `json:"endY"`
}

// Rule 是一条水平或任意方向的线段。
type Rule struct {
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	X2        float64 `json:"x2"`
	Y2        float64 `json:"y2"`
	Thickness float64 `json:"thickness"`
}

// ImageBox 描述图片位置与尺寸。
type ImageBox struct {
	Path   string  `json:"path"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DocumentMeta 保存 PDF 元信息。
type DocumentMeta struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Subject  string   `json:"subject"`
	Creator  string   `json:"creator"`
	Keywords []string `json:"keywords"`
}
