package rasterrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/ByLCY/certforge/fonts"
	"github.com/ByLCY/certforge/layout"
	"github.com/ByLCY/certforge/renderer"
)

// DefaultDPI 是 PNG 预览的默认分辨率。
const DefaultDPI = 150.0

const mmPerInch = 25.4

var ink = color.RGBA{R: 20, G: 20, B: 20, A: 255}

// Renderer 用 fogleman/gg 把布局结果栅格化为 PNG，测量与绘制共用同一组 freetype 字体面。
// 只支持 TrueType 轮廓：内置 Latin Modern（CFF）会被替换为 Go 字体。
type Renderer struct {
	dpi     float64
	baseDir string
	logger  *slog.Logger

	mu       sync.Mutex
	parsed   map[string]*truetype.Font // by src
	families map[string]layout.FontResource
	faces    map[faceKey]font.Face
}

type faceKey struct {
	src  string
	size float64
}

var (
	_ renderer.MeasuringRenderer = (*Renderer)(nil)
	_ layout.FontRegistrar       = (*Renderer)(nil)
)

// Options 配置光栅渲染器。
type Options struct {
	DPI     float64
	BaseDir string
	Logger  *slog.Logger
}

// NewRenderer 创建光栅渲染器，DPI 非正时使用 DefaultDPI。
func NewRenderer(opts Options) *Renderer {
	r := &Renderer{
		dpi:      opts.DPI,
		baseDir:  opts.BaseDir,
		logger:   opts.Logger,
		parsed:   map[string]*truetype.Font{},
		families: map[string]layout.FontResource{},
		faces:    map[faceKey]font.Face{},
	}
	if r.dpi <= 0 {
		r.dpi = DefaultDPI
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

// RegisterFonts 解析模板声明的字体，实现 layout.FontRegistrar。
func (r *Renderer) RegisterFonts(set map[string]layout.FontResource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, res := range set {
		for _, src := range []string{res.Src(false), res.Src(true)} {
			if _, err := r.parseLocked(src); err != nil {
				return fmt.Errorf("字体 %s: %w", name, err)
			}
		}
		r.families[name] = res
	}
	return nil
}

// TextWidth 返回文本宽度（mm），实现 layout.Measurer。
func (r *Renderer) TextWidth(text string, style layout.TextStyle) float64 {
	if text == "" {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	face := r.faceLocked(style)
	return r.toMM(fixedToFloat(font.MeasureString(face, text)))
}

// Render 输出 PNG 字节。
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	page := result.Page
	if page.Width <= 0 || page.Height <= 0 {
		return nil, fmt.Errorf("页面尺寸无效: %gx%g", page.Width, page.Height)
	}
	if err := r.RegisterFonts(result.Fonts); err != nil {
		return nil, err
	}

	dc := gg.NewContext(int(math.Ceil(r.toPx(page.Width))), int(math.Ceil(r.toPx(page.Height))))
	dc.SetColor(color.White)
	dc.Clear()

	dc.SetColor(ink)
	for _, ln := range page.Rules {
		dc.SetLineWidth(math.Max(r.toPx(ln.Thickness), 1))
		dc.DrawLine(r.toPx(ln.X1), r.toPx(ln.Y1), r.toPx(ln.X2), r.toPx(ln.Y2))
		dc.Stroke()
	}

	r.mu.Lock()
	for _, tb := range page.Texts {
		r.drawTextLocked(dc, tb.Content, tb.X, tb.Y, tb.LineHeight, tb.Style)
	}
	for _, para := range page.Paragraphs {
		for _, w := range para.Words {
			r.drawTextLocked(dc, w.Text, w.X, w.Y, para.Constraints.LineHeight, para.Style.WithEmphasis(w.Emphasized))
		}
	}
	r.mu.Unlock()

	for _, img := range page.Images {
		if err := r.drawImage(dc, img); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("编码 PNG 失败: %w", err)
	}
	r.logger.Debug("png rendered", "title", result.Meta.Title, "dpi", r.dpi,
		"width", dc.Width(), "height", dc.Height())
	return buf.Bytes(), nil
}

func (r *Renderer) drawTextLocked(dc *gg.Context, content string, x, y, lineHeight float64, style layout.TextStyle) {
	face := r.faceLocked(style)
	metrics := face.Metrics()
	ascent := r.toMM(fixedToFloat(metrics.Ascent))
	descent := r.toMM(fixedToFloat(metrics.Descent))
	leading := math.Max(lineHeight-(ascent+descent), 0)
	dc.SetFontFace(face)
	dc.SetColor(ink)
	dc.DrawString(content, r.toPx(x), r.toPx(y+leading/2+ascent))
}

func (r *Renderer) drawImage(dc *gg.Context, box layout.ImageBox) error {
	path := box.Path
	if !filepath.IsAbs(path) {
		if r.baseDir == "" {
			return fmt.Errorf("未指定资源目录时不允许直接使用路径：%s", box.Path)
		}
		path = filepath.Join(r.baseDir, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("读取图片 %s 失败: %w", box.Path, err)
	}
	defer file.Close()
	src, _, err := image.Decode(file)
	if err != nil {
		return fmt.Errorf("解码图片 %s 失败: %w", box.Path, err)
	}
	w := int(math.Round(r.toPx(box.Width)))
	h := int(math.Round(r.toPx(box.Height)))
	if w <= 0 || h <= 0 {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	dc.DrawImage(dst, int(math.Round(r.toPx(box.X))), int(math.Round(r.toPx(box.Y))))
	return nil
}

// faceLocked 返回指定样式的字体面；未注册的字体回退到内置字体。调用方需持有 mu。
func (r *Renderer) faceLocked(style layout.TextStyle) font.Face {
	res, ok := r.families[style.Font]
	if !ok {
		res = layout.DefaultFont
	}
	src := res.Src(style.Emphasized)
	key := faceKey{src: src, size: style.Size}
	if face, ok := r.faces[key]; ok {
		return face
	}
	f, err := r.parseLocked(src)
	if err != nil {
		r.logger.Warn("font unavailable, using built-in fallback", "src", src, "err", err)
		f = r.mustParseLocked(layout.DefaultFont.Src(style.Emphasized))
	}
	face := truetype.NewFace(f, &truetype.Options{
		Size:    style.Size * layout.MmToPt,
		DPI:     r.dpi,
		Hinting: font.HintingNone,
	})
	r.faces[key] = face
	return face
}

func (r *Renderer) parseLocked(src string) (*truetype.Font, error) {
	if f, ok := r.parsed[src]; ok {
		return f, nil
	}
	data, err := r.loadFontBytes(src)
	if err != nil {
		return nil, err
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("解析字体 %s 失败（仅支持 TrueType）: %w", src, err)
	}
	r.parsed[src] = f
	return f, nil
}

func (r *Renderer) mustParseLocked(src string) *truetype.Font {
	f, err := r.parseLocked(src)
	if err != nil {
		panic(fmt.Sprintf("内置字体 %s 不可用: %v", src, err))
	}
	return f
}

func (r *Renderer) loadFontBytes(src string) ([]byte, error) {
	if src == "" {
		return nil, fmt.Errorf("字体缺少 src")
	}
	if fonts.IsEmbedded(src) {
		return fonts.LoadTrueType(src)
	}
	path := src
	if !filepath.IsAbs(path) {
		if r.baseDir == "" {
			return nil, fmt.Errorf("未指定资源目录时不允许直接使用字体路径：%s", src)
		}
		path = filepath.Join(r.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体 %s 失败: %w", src, err)
	}
	return data, nil
}

func (r *Renderer) toPx(mm float64) float64 { return mm / mmPerInch * r.dpi }

func (r *Renderer) toMM(px float64) float64 { return px / r.dpi * mmPerInch }

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }
