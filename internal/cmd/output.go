package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Output 命令行输出（终端上带颜色）
type Output struct {
	w       io.Writer
	success func(a ...interface{}) string
	warning func(a ...interface{}) string
	bold    func(a ...interface{}) string
	faint   func(a ...interface{}) string
}

// NewOutput 创建输出工具；w 不是终端时关闭颜色
func NewOutput(w io.Writer) *Output {
	noColor := !isTerminal(w)
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
		return c.SprintFunc()
	}
	return &Output{
		w:       w,
		success: mk(color.FgGreen),
		warning: mk(color.FgYellow),
		bold:    mk(color.Bold),
		faint:   mk(color.Faint),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Success 输出成功消息
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.success("OK"), fmt.Sprintf(format, args...))
}

// Warning 输出警告消息
func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.warning("WARN"), fmt.Sprintf(format, args...))
}

// Plain 输出普通消息
func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// KeyValue 输出键值对
func (o *Output) KeyValue(key, value string) {
	fmt.Fprintf(o.w, "  %-20s %s\n", key+":", value)
}

// Table 表格输出
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建表格
func (o *Output) NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	return &Table{out: o, headers: headers, widths: widths}
}

// AddRow 添加行
func (t *Table) AddRow(cols ...string) {
	for i, col := range cols {
		if n := utf8.RuneCountInString(col); i < len(t.widths) && n > t.widths[i] {
			t.widths[i] = n
		}
	}
	t.rows = append(t.rows, cols)
}

// Render 渲染表格
func (t *Table) Render() {
	w := t.out.w
	// 颜色转义码不计入列宽，先补齐再着色
	for i, h := range t.headers {
		fmt.Fprint(w, t.out.bold(pad(h, t.widths[i])), "  ")
	}
	fmt.Fprintln(w)

	total := 0
	for _, width := range t.widths {
		total += width + 2
	}
	fmt.Fprintln(w, t.out.faint(strings.Repeat("-", min(total, 120))))

	for _, row := range t.rows {
		for i, col := range row {
			if i < len(t.widths) {
				fmt.Fprint(w, pad(col, t.widths[i]), "  ")
			}
		}
		fmt.Fprintln(w)
	}
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
