package fonts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-fonts/latin-modern/lmroman10bold"
	"github.com/go-fonts/latin-modern/lmroman10regular"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// EmbedPrefix 标记内置字体来源，例如 "embed:lmroman10-regular"。
const EmbedPrefix = "embed:"

// 内置字体：Latin Modern 为 OpenType(CFF)，用于矢量输出；
// Go 字体为 TrueType，可直接交给 freetype 做光栅预览。
var builtin = map[string][]byte{
	"lmroman10-regular": lmroman10regular.TTF,
	"lmroman10-bold":    lmroman10bold.TTF,
	"goregular":         goregular.TTF,
	"gobold":            gobold.TTF,
}

// TrueType 给出每个内置字体在只支持 TrueType 的后端中的替代字体。
var trueType = map[string]string{
	"lmroman10-regular": "goregular",
	"lmroman10-bold":    "gobold",
	"goregular":         "goregular",
	"gobold":            "gobold",
}

// Load 返回内置字体的字节数据，name 可写为 "embed:lmroman10-regular" 或直接 "lmroman10-regular"。
func Load(name string) ([]byte, error) {
	key := strings.ToLower(strings.TrimPrefix(name, EmbedPrefix))
	data, ok := builtin[key]
	if !ok {
		return nil, fmt.Errorf("读取内置字体 %s 失败: 未知字体（可用: %s）", name, strings.Join(Names(), ", "))
	}
	return data, nil
}

// LoadTrueType 与 Load 相同，但总是返回 TrueType 轮廓的字体。
func LoadTrueType(name string) ([]byte, error) {
	key := strings.ToLower(strings.TrimPrefix(name, EmbedPrefix))
	alt, ok := trueType[key]
	if !ok {
		return nil, fmt.Errorf("内置字体 %s 没有 TrueType 替代", name)
	}
	return builtin[alt], nil
}

// IsEmbedded 判断 src 是否引用内置字体。
func IsEmbedded(src string) bool {
	return strings.HasPrefix(src, EmbedPrefix)
}

// Names 返回所有内置字体名称（已排序）。
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
