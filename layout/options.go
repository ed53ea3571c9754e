package layout

import "log/slog"

// BuildOptions 配置布局阶段所需的依赖。
type BuildOptions struct {
	Measurer Measurer
	// Logger 接收溢出等警告，为空时丢弃。
	Logger *slog.Logger
}

// Measurer 由渲染器实现：返回文本在给定样式下的宽度（mm）。
// 同一个 Measurer 必须同时用于布局与绘制，保证两边看到的字体一致。
type Measurer interface {
	TextWidth(text string, style TextStyle) float64
}

// FontRegistrar 是 Measurer 的可选扩展：Build 在排版前把模板声明的字体交给它预先加载，
// 加载失败会直接返回错误，而不是在测量时静默回退。
type FontRegistrar interface {
	RegisterFonts(fonts map[string]FontResource) error
}

// MeasureFor 将 Measurer 适配为段落引擎使用的 MeasureFunc，字体与字号固定，字重由参数决定。
func MeasureFor(m Measurer, base TextStyle) MeasureFunc {
	return func(text string, emphasized bool) float64 {
		return m.TextWidth(text, base.WithEmphasis(emphasized))
	}
}

func (o BuildOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}
