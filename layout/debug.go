package layout

import (
	"encoding/json"
	"io"
	"os"
)

// EncodeDebugJSON 将布局结果以缩进 JSON 写出，便于核对每个词的坐标。
func EncodeDebugJSON(res *Result, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteDebugJSON 将布局结果写入文件。
func WriteDebugJSON(res *Result, path string) error {
	if res == nil {
		return nil
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeDebugJSON(res, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
