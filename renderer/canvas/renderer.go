package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/certforge/fonts"
	"github.com/ByLCY/certforge/layout"
	"github.com/ByLCY/certforge/renderer"
)

const (
	defaultRuleWidth = 0.2
	defaultCreator   = "certforge"
)

var textColor = canvas.RGBA(20.0/255.0, 20.0/255.0, 20.0/255.0, 1.0)

// Renderer draws certificate layouts via github.com/tdewolff/canvas and
// measures text with the very same font faces.
type Renderer struct {
	baseDir string
	logger  *slog.Logger

	// injected resources
	fontBlobs  map[string][]byte // by unique name
	imageBlobs map[string][]byte // by unique name

	fontMu         sync.Mutex
	fontFamilies   map[string]*canvas.FontFamily // by source fingerprint
	familyByName   map[string]*canvas.FontFamily // by font name, last registration wins
	fallbackFamily *canvas.FontFamily

	// canvas 的整形缓存不保证并发安全，测量与绘制串行执行
	shapeMu sync.Mutex
}

var (
	_ renderer.MeasuringRenderer = (*Renderer)(nil)
	_ layout.FontRegistrar       = (*Renderer)(nil)
)

// Options configures the canvas renderer.
type Options struct {
	BaseDir string
	Fonts   map[string]Resource // built-in fonts accessible via built-in:<name>
	Images  map[string]Resource // built-in images accessible via built-in:<name>
	Logger  *slog.Logger
}

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

// NewRenderer creates a canvas-based renderer rooted at baseDir for resolving assets.
func NewRenderer(baseDir string) *Renderer { return NewRendererWithOptions(Options{BaseDir: baseDir}) }

// NewRendererWithOptions creates a renderer with injected resources and optional baseDir.
func NewRendererWithOptions(opts Options) *Renderer {
	r := &Renderer{
		baseDir:      opts.BaseDir,
		logger:       opts.Logger,
		fontBlobs:    ingest(opts.Fonts),
		imageBlobs:   ingest(opts.Images),
		fontFamilies: map[string]*canvas.FontFamily{},
		familyByName: map[string]*canvas.FontFamily{},
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

func ingest(resources map[string]Resource) map[string][]byte {
	blobs := map[string][]byte{}
	for name, res := range resources {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			blobs[name] = res.Bytes
			continue
		}
		if res.Path != "" {
			data, _ := os.ReadFile(res.Path) // 读取失败时在使用处报错
			if len(data) > 0 {
				blobs[name] = data
			}
		}
	}
	return blobs
}

// RegisterFonts 预先加载模板声明的字体，实现 layout.FontRegistrar。
func (r *Renderer) RegisterFonts(set map[string]layout.FontResource) error {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		font := set[name]
		if font.Name == "" {
			font.Name = name
		}
		if _, err := r.ensureFontFamily(font); err != nil {
			return err
		}
	}
	return nil
}

// TextWidth 返回文本在给定样式下的宽度（mm），实现 layout.Measurer。
// 未注册的字体名回退到内置 Latin Modern。
func (r *Renderer) TextWidth(text string, style layout.TextStyle) float64 {
	if text == "" {
		return 0
	}
	face := r.fontFace(style)
	r.shapeMu.Lock()
	defer r.shapeMu.Unlock()
	return face.TextWidth(text)
}

// Render renders the result into a PDF byte slice.
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

	var buf bytes.Buffer
	writer := pdf.New(&buf, page.Width, page.Height, nil)
	r.applyMeta(writer, result.Meta)

	c := canvas.New(page.Width, page.Height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点
	if err := r.drawPage(ctx, page); err != nil {
		return nil, err
	}
	c.RenderTo(writer)

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	r.logger.Debug("pdf rendered", "title", result.Meta.Title, "bytes", buf.Len(),
		"words", countWords(page.Paragraphs), "texts", len(page.Texts))
	return buf.Bytes(), nil
}

func (r *Renderer) applyMeta(writer *pdf.PDF, meta layout.DocumentMeta) {
	if writer == nil {
		return
	}
	creator := meta.Creator
	if creator == "" {
		creator = defaultCreator
	}
	keywords := strings.Join(meta.Keywords, ", ")
	writer.SetInfo(meta.Title, meta.Subject, keywords, meta.Author, creator)
}

func (r *Renderer) drawPage(ctx *canvas.Context, page layout.Page) error {
	// 线条作为背景先画
	r.drawRules(ctx, page.Rules)

	r.shapeMu.Lock()
	for _, tb := range page.Texts {
		r.drawText(ctx, tb.Content, tb.X, tb.Y, tb.LineHeight, tb.Style)
	}
	for _, para := range page.Paragraphs {
		for _, w := range para.Words {
			r.drawText(ctx, w.Text, w.X, w.Y, para.Constraints.LineHeight, para.Style.WithEmphasis(w.Emphasized))
		}
	}
	r.shapeMu.Unlock()

	return r.drawImages(ctx, page.Images)
}

// drawText 以行顶部 y 加半个行距与字体上升部得到基线。调用方需持有 shapeMu。
func (r *Renderer) drawText(ctx *canvas.Context, content string, x, y, lineHeight float64, style layout.TextStyle) {
	face := r.fontFace(style)
	metrics := face.Metrics()
	leading := math.Max(lineHeight-(metrics.Ascent+metrics.Descent), 0)
	baseline := y + leading/2 + metrics.Ascent
	ctx.DrawText(x, baseline, canvas.NewTextLine(face, content, canvas.Left))
}

// drawRules 绘制直线列表（毫米单位）
func (r *Renderer) drawRules(ctx *canvas.Context, rules []layout.Rule) {
	for _, ln := range rules {
		w := ln.Thickness
		if w <= 0 {
			w = defaultRuleWidth
		}
		ctx.SetStrokeColor(textColor)
		ctx.SetStrokeWidth(w)
		p := &canvas.Path{}
		p.MoveTo(0, 0)
		p.LineTo(ln.X2-ln.X1, ln.Y2-ln.Y1)
		ctx.DrawPath(ln.X1, ln.Y1, p)
	}
}

func (r *Renderer) drawImages(ctx *canvas.Context, images []layout.ImageBox) error {
	for _, img := range images {
		if img.Path == "" {
			continue
		}
		data, err := r.loadImage(img.Path)
		if err != nil {
			return err
		}
		width := img.Width
		if width <= 0 {
			width = float64(data.Bounds().Dx()) / 4.0
		}
		dpmm := float64(data.Bounds().Dx()) / width
		if dpmm <= 0 {
			dpmm = 1
		}
		ctx.DrawImage(img.X, img.Y, data, canvas.DPMM(dpmm))
	}
	return nil
}

func (r *Renderer) loadImage(orig string) (image.Image, error) {
	if name, ok := builtinName(orig); ok {
		blob, ok := r.imageBlobs[name]
		if !ok {
			return nil, fmt.Errorf("找不到内置图片资源 built-in:%s", name)
		}
		img, _, err := image.Decode(bytes.NewReader(blob))
		if err != nil {
			return nil, fmt.Errorf("解码内置图片 built-in:%s 失败: %w", name, err)
		}
		return img, nil
	}
	path, err := r.resolvePath(orig)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("读取图片 %s 失败: %w", orig, err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("解码图片 %s 失败: %w", orig, err)
	}
	return img, nil
}

func (r *Renderer) fontFace(style layout.TextStyle) *canvas.FontFace {
	family := r.familyFor(style.Font)
	fs := canvas.FontRegular
	if style.Emphasized {
		fs = canvas.FontBold
	}
	return family.Face(toPt(style.Size), textColor, fs, canvas.FontNormal)
}

func (r *Renderer) familyFor(name string) *canvas.FontFamily {
	r.fontMu.Lock()
	family, ok := r.familyByName[name]
	r.fontMu.Unlock()
	if ok {
		return family
	}
	r.logger.Warn("font not registered, using built-in fallback", "font", name)
	return r.fallback()
}

func (r *Renderer) ensureFontFamily(font layout.FontResource) (*canvas.FontFamily, error) {
	key := fontCacheKey(font)
	r.fontMu.Lock()
	defer r.fontMu.Unlock()

	if family, ok := r.fontFamilies[key]; ok {
		r.familyByName[font.Name] = family
		return family, nil
	}
	family := canvas.NewFontFamily(font.Name)
	// 缺少粗体时 Src(true) 返回常规字重，两种样式都必须可用
	for _, variant := range []struct {
		emphasized bool
		style      canvas.FontStyle
	}{{false, canvas.FontRegular}, {true, canvas.FontBold}} {
		data, err := r.loadFontBytes(font, variant.emphasized)
		if err != nil {
			return nil, err
		}
		if err := family.LoadFont(data, 0, variant.style); err != nil {
			return nil, fmt.Errorf("解析字体 %s 失败: %w", font.Src(variant.emphasized), err)
		}
	}
	r.fontFamilies[key] = family
	r.familyByName[font.Name] = family
	return family, nil
}

func (r *Renderer) loadFontBytes(font layout.FontResource, emphasized bool) ([]byte, error) {
	src := font.Src(emphasized)
	if src == "" {
		return nil, fmt.Errorf("字体 %s 缺少 src", font.Name)
	}
	if name, ok := builtinName(src); ok {
		if blob, ok := r.fontBlobs[name]; ok {
			return blob, nil
		}
		return nil, fmt.Errorf("找不到内置字体资源 built-in:%s", name)
	}
	if fonts.IsEmbedded(src) {
		return fonts.Load(src)
	}
	path, err := r.resolvePath(src)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体 %s 失败: %w", src, err)
	}
	return data, nil
}

// fallback 返回内置 Latin Modern；内置数据在编译期嵌入，解析失败视为构建错误。
func (r *Renderer) fallback() *canvas.FontFamily {
	r.fontMu.Lock()
	defer r.fontMu.Unlock()
	if r.fallbackFamily != nil {
		return r.fallbackFamily
	}
	family := canvas.NewFontFamily("certforge-fallback")
	for src, style := range map[string]canvas.FontStyle{
		layout.DefaultFont.Regular: canvas.FontRegular,
		layout.DefaultFont.Bold:    canvas.FontBold,
	} {
		data, err := fonts.Load(src)
		if err == nil {
			err = family.LoadFont(data, 0, style)
		}
		if err != nil {
			panic(fmt.Sprintf("内置字体 %s 不可用: %v", src, err))
		}
	}
	r.fallbackFamily = family
	return family
}

func (r *Renderer) resolvePath(orig string) (string, error) {
	if r.baseDir == "" && !filepath.IsAbs(orig) {
		return "", fmt.Errorf("未指定资源目录时不允许直接使用路径：%s（请改用 built-in: 或 embed:）", orig)
	}
	if filepath.IsAbs(orig) {
		return orig, nil
	}
	return filepath.Join(r.baseDir, orig), nil
}

func builtinName(src string) (string, bool) {
	for _, prefix := range []string{"built-in:", "builtin:"} {
		if strings.HasPrefix(src, prefix) {
			return strings.TrimPrefix(src, prefix), true
		}
	}
	return "", false
}

func fontCacheKey(font layout.FontResource) string {
	return fmt.Sprintf("%s|%s|%s", font.Name, font.Regular, font.Bold)
}

func countWords(paragraphs []layout.ParagraphBox) int {
	n := 0
	for _, p := range paragraphs {
		n += len(p.Words)
	}
	return n
}

// toPt 将毫米(mm)转换为点(pt)。
func toPt(mm float64) float64 { return mm * layout.MmToPt }
