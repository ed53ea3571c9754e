package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/ByLCY/certforge/certificate"
	"github.com/ByLCY/certforge/config"
	"github.com/ByLCY/certforge/dsl"
	"github.com/ByLCY/certforge/layout"
	"github.com/ByLCY/certforge/records"
	"github.com/ByLCY/certforge/renderer"
	canvasrenderer "github.com/ByLCY/certforge/renderer/canvas"
	rasterrenderer "github.com/ByLCY/certforge/renderer/raster"
	"github.com/ByLCY/certforge/words"
)

type options struct {
	kind          string
	templatePath  string
	admissionNo   string
	recordsPath   string
	configPath    string
	outputPath    string
	format        string
	debugPath     string
	serial        string
	issued        string
	purpose       string
	printTemplate bool
	verbose       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.kind, "kind", "bonafide", "证书类型: "+kindList())
	flag.StringVar(&opts.templatePath, "template", "", "自定义模板文件，覆盖内置模板")
	flag.StringVar(&opts.admissionNo, "student", "", "学生学号（admission number）")
	flag.StringVar(&opts.recordsPath, "records", "", "学生记录文件（YAML/JSON）")
	flag.StringVar(&opts.configPath, "config", "", "配置文件 certforge.yaml")
	flag.StringVar(&opts.outputPath, "out", "", "输出路径，默认写入配置中的 output_dir")
	flag.StringVar(&opts.format, "format", "", "输出格式 pdf|png，默认取配置")
	flag.StringVar(&opts.debugPath, "debug", "", "布局调试 JSON 输出路径")
	flag.StringVar(&opts.serial, "serial", "", "证书编号，默认按类型/学号/年份生成")
	flag.StringVar(&opts.issued, "issued", "", "签发日期，默认今天")
	flag.StringVar(&opts.purpose, "purpose", "", "开具用途（bonafide）")
	flag.BoolVar(&opts.printTemplate, "print-template", false, "输出内置模板源码后退出")
	flag.BoolVar(&opts.verbose, "v", false, "输出调试日志")
	flag.Parse()

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.printTemplate {
		if err := printTemplate(opts.kind); err != nil {
			log.Fatalf("输出模板失败: %v", err)
		}
		return
	}

	out, err := run(ctx, opts, logger)
	if err != nil {
		log.Fatalf("生成证书失败: %v", err)
	}
	fmt.Printf("已生成证书：%s\n", out)
}

// run 串联配置、记录查询、布局与渲染，返回输出文件路径。
func run(ctx context.Context, opts options, logger *slog.Logger) (string, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return "", err
	}
	if opts.format != "" {
		cfg.Format = strings.ToLower(opts.format)
	}
	if opts.recordsPath != "" {
		cfg.Records = opts.recordsPath
	}
	if opts.purpose != "" {
		cfg.Purpose = opts.purpose
	}
	if cfg.Records == "" {
		return "", fmt.Errorf("未指定学生记录文件（-records 或配置 records）")
	}
	if opts.admissionNo == "" {
		return "", fmt.Errorf("未指定学号（-student）")
	}

	src, err := records.LoadFile(cfg.Records)
	if err != nil {
		return "", err
	}
	// 配置与环境变量中的学校字段优先，其余字段取自记录文件
	cfg.School = cfg.School.Merge(src.School())
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	kind, err := certificate.ParseKind(opts.kind)
	if err != nil {
		return "", err
	}
	student, err := src.Student(ctx, opts.admissionNo)
	if err != nil {
		return "", err
	}
	req := certificate.Request{
		Kind:    kind,
		Student: student,
		Serial:  opts.serial,
		Purpose: cfg.Purpose,
	}
	if opts.issued != "" {
		if req.Issued, err = words.ParseDate(opts.issued); err != nil {
			return "", fmt.Errorf("签发日期 %q 无法解析: %w", opts.issued, err)
		}
	}
	tplPath := opts.templatePath
	if tplPath == "" {
		tplPath = cfg.Templates[string(kind)]
	}
	if tplPath != "" {
		if req.Template, err = loadTemplate(tplPath); err != nil {
			return "", err
		}
	}

	r := newRenderer(cfg, logger)
	gen := &certificate.Generator{Renderer: r, School: cfg.School, Logger: logger}
	result, err := gen.Layout(ctx, req)
	if err != nil {
		return "", err
	}
	if opts.debugPath != "" {
		if err := writeDebug(result, opts.debugPath); err != nil {
			return "", err
		}
	}
	data, err := r.Render(result)
	if err != nil {
		return "", fmt.Errorf("渲染失败: %w", err)
	}

	outputPath := opts.outputPath
	if outputPath == "" {
		outputPath = defaultOutputPath(cfg, kind, student, req.Issued)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return "", fmt.Errorf("写入文件失败: %w", err)
	}
	return outputPath, nil
}

func newRenderer(cfg config.Config, logger *slog.Logger) renderer.MeasuringRenderer {
	if strings.EqualFold(cfg.Format, "png") {
		return rasterrenderer.NewRenderer(rasterrenderer.Options{DPI: cfg.DPI, BaseDir: cfg.AssetsDir, Logger: logger})
	}
	return canvasrenderer.NewRendererWithOptions(canvasrenderer.Options{BaseDir: cfg.AssetsDir, Logger: logger})
}

func loadTemplate(path string) (*dsl.Template, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开模板文件 %s: %w", path, err)
	}
	defer file.Close()
	tpl, err := dsl.Parse(path, file)
	if err != nil {
		return nil, fmt.Errorf("解析模板失败: %w", err)
	}
	return tpl, nil
}

func printTemplate(name string) error {
	kind, err := certificate.ParseKind(name)
	if err != nil {
		return err
	}
	src, err := certificate.Source(kind)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(src)
	return err
}

func defaultOutputPath(cfg config.Config, kind certificate.Kind, st records.Student, issued time.Time) string {
	if issued.IsZero() {
		issued = time.Now()
	}
	no := strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace(st.AdmissionNo)
	name := fmt.Sprintf("%s-%s-%s.%s", kind, no, issued.Format("20060102"), cfg.Format)
	return filepath.Join(cfg.OutputDir, name)
}

func writeDebug(result *layout.Result, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(result, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}

func kindList() string {
	var names []string
	for _, k := range certificate.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, "|")
}
