package binding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ByLCY/certforge/words"
)

var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Filter 将绑定值转换为最终文本。
type Filter func(string) string

// cases.Caser 不是并发安全的，这里用池复用。
var titlePool = sync.Pool{
	New: func() any { c := cases.Title(language.English); return &c },
}

var upperPool = sync.Pool{
	New: func() any { c := cases.Upper(language.English); return &c },
}

func withCaser(pool *sync.Pool, s string) string {
	c := pool.Get().(*cases.Caser)
	defer pool.Put(c)
	return c.String(s)
}

var filters = map[string]Filter{
	"upper":      func(s string) string { return withCaser(&upperPool, s) },
	"lower":      strings.ToLower,
	"title":      func(s string) string { return withCaser(&titlePool, strings.ToLower(s)) },
	"trim":       strings.TrimSpace,
	"date":       words.FormatDate,
	"datewords":  words.DateInWords,
	"words":      numberFilter(words.Cardinal),
	"ordinal":    numberFilter(words.Ordinal),
	"ordinalnum": numberFilter(words.OrdinalSuffix),
}

func numberFilter(fn func(uint64) string) Filter {
	return func(s string) string {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return s
		}
		return fn(n)
	}
}

// Filters 返回可用的过滤器名称（用于 CLI 帮助与测试）。
func Filters() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	return names
}

// Interpolate 将文本中的 ${path.to.value|filter} 替换为 data 中的值。
// 若 data 为空或路径不存在，则保留原占位符；未知过滤器不改变值。
func Interpolate(text string, data any) string {
	if data == nil {
		return text
	}
	return exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		parts := strings.Split(groups[1], "|")
		path := strings.TrimSpace(parts[0])
		if path == "" {
			return match
		}
		val, ok := Resolve(data, path)
		if !ok {
			return match
		}
		out := stringify(val)
		for _, name := range parts[1:] {
			if fn, ok := filters[strings.ToLower(strings.TrimSpace(name))]; ok {
				out = fn(out)
			}
		}
		return out
	})
}

// Resolve 按 a.b[0].c 形式的路径在 map/slice 中取值。
func Resolve(data any, path string) (any, bool) {
	current := data
	for _, segment := range strings.Split(path, ".") {
		name, indexes := parseSegment(segment)
		if name != "" {
			var ok bool
			current, ok = descendMap(current, name)
			if !ok {
				return nil, false
			}
		}
		for _, idxStr := range indexes {
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, false
			}
			var ok bool
			current, ok = descendArray(current, idx)
			if !ok {
				return nil, false
			}
		}
	}
	return current, true
}

func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON 数字默认解码为 float64，整数不输出小数点。
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func parseSegment(segment string) (string, []string) {
	name := segment
	var indexes []string
	if i := strings.Index(segment, "["); i != -1 {
		name = segment[:i]
		rest := segment[i:]
		for len(rest) > 0 && rest[0] == '[' {
			end := strings.IndexByte(rest, ']')
			if end == -1 {
				break
			}
			indexes = append(indexes, rest[1:end])
			rest = rest[end+1:]
		}
	}
	return name, indexes
}

func descendMap(current any, key string) (any, bool) {
	switch c := current.(type) {
	case map[string]any:
		val, ok := c[key]
		return val, ok
	case map[string]string:
		val, ok := c[key]
		return val, ok
	default:
		return nil, false
	}
}

func descendArray(current any, idx int) (any, bool) {
	switch c := current.(type) {
	case []any:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	case []string:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}
