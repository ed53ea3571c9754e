package renderer

import "github.com/ByLCY/certforge/layout"

// Renderer 将布局结果输出为最终文件，例如 PDF 或 PNG 预览。
// Render 返回生成的二进制数据以及可能的错误。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}

// MeasuringRenderer 同时负责测量与绘制。排版与绘制必须使用同一个实例，
// 否则两端看到的字宽不同，对齐后的右边缘会错位。
type MeasuringRenderer interface {
	Renderer
	layout.Measurer
}
