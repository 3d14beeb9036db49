package gpu

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/cespare/xxhash/v2"
	"github.com/evilsocket/islazy/fs"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/cortex/internal/tensor"
)

// KernelPathEnv overrides the directories searched for kernel templates.
// It holds a list separated by the OS path list separator.
const KernelPathEnv = "CORTEX_KERNEL_PATH"

const commonTemplate = "common"

//go:embed kernels/*.wgsl.tmpl
var embeddedKernels embed.FS

// KernelSearchPath returns the existing directories to search for kernel templates:
// entries of $CORTEX_KERNEL_PATH first, then configured.
func KernelSearchPath(configured string) []string {
	var candidates []string
	if env := os.Getenv(KernelPathEnv); env != "" {
		candidates = append(candidates, filepath.SplitList(env)...)
	}
	if configured != "" {
		candidates = append(candidates, filepath.SplitList(configured)...)
	}

	var dirs []string
	for _, dir := range candidates {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if expanded, err := fs.Expand(dir); err == nil {
			dir = expanded
		}
		if fs.Exists(dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

type kernelTemplate struct {
	tmpl        *template.Template
	fingerprint uint64
	origin      string
}

// templateSet loads and renders kernel templates, preferring files found on the search path.
type templateSet struct {
	searchPath []string
	log        *logrus.Entry

	mu     sync.Mutex
	loaded map[string]*kernelTemplate
}

func newTemplateSet(searchPath []string, log *logrus.Entry) *templateSet {
	return &templateSet{
		searchPath: searchPath,
		log:        log,
		loaded:     make(map[string]*kernelTemplate),
	}
}

func (s *templateSet) source(name string) (text, origin string, err error) {
	file := name + ".wgsl.tmpl"
	for _, dir := range s.searchPath {
		path := filepath.Join(dir, file)
		if !fs.Exists(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("reading kernel template %s: %w", path, err)
		}
		return string(data), path, nil
	}
	data, err := embeddedKernels.ReadFile("kernels/" + file)
	if err != nil {
		return "", "", fmt.Errorf("no kernel template %q", name)
	}
	return string(data), "embedded", nil
}

func (s *templateSet) get(kernel string) (*kernelTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.loaded[kernel]; ok {
		return t, nil
	}

	common, _, err := s.source(commonTemplate)
	if err != nil {
		return nil, err
	}
	body, origin, err := s.source(kernel)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(kernel).Funcs(kernelFuncs).Parse(common)
	if err == nil {
		_, err = tmpl.Parse(body)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing kernel template %s (%s): %w", kernel, origin, err)
	}

	t := &kernelTemplate{
		tmpl:        tmpl,
		fingerprint: xxhash.Sum64String(common + "\x00" + body),
		origin:      origin,
	}
	s.loaded[kernel] = t
	s.log.WithFields(logrus.Fields{"kernel": kernel, "origin": origin}).Debug("loaded kernel template")
	return t, nil
}

func (t *kernelTemplate) render(desc KernelDesc) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, "main", desc); err != nil {
		return "", fmt.Errorf("rendering kernel %s: %w", desc.Name(), err)
	}
	return buf.String(), nil
}

var kernelFuncs = template.FuncMap{
	"lane":    func(dt tensor.DataType) string { return laneType(dt) },
	"access":  access,
	"operand": operandNamed,
	"offset":  offsetExpr,
	"elem":    elemExpr,
	"load":    loadExpr,
	"store":   storeExpr,
	"domain":  func(d KernelDesc) string { return laneType(d.Domain) },
	"zero":    zeroLit,
	"one":     oneLit,
	"unary":   unaryExpr,
	"binary":  binaryExpr,
	"u32":     func(n int) string { return strconv.Itoa(n) + "u" },
}

func access(op Operand) string {
	if op.Write {
		return "read_write"
	}
	return "read"
}

func operandNamed(d KernelDesc, name string) (Operand, error) {
	for _, op := range d.Operands {
		if op.Name == name {
			return op, nil
		}
	}
	return Operand{}, fmt.Errorf("kernel %s has no operand %q", d.Kernel, name)
}

// offsetExpr unrolls the element offset of linear index idx for one operand layout.
func offsetExpr(op Operand, idx string) string {
	l := op.Layout
	if l.contiguous() {
		if l.Offset == 0 {
			return idx
		}
		return fmt.Sprintf("%s + %du", idx, l.Offset)
	}

	terms := l.terms()
	if len(terms) > 0 && strings.ContainsAny(idx, " +-*/%") {
		idx = "(" + idx + ")"
	}
	exprs := make([]string, 0, len(terms)+1)
	for _, t := range terms {
		coord := idx
		if t.div > 1 {
			coord = fmt.Sprintf("(%s / %du)", idx, t.div)
		}
		if t.mod != 0 {
			coord = fmt.Sprintf("(%s %% %du)", coord, t.mod)
		}
		if t.stride != 1 {
			coord = fmt.Sprintf("%s * %du", coord, t.stride)
		}
		exprs = append(exprs, coord)
	}
	if l.Offset != 0 || len(exprs) == 0 {
		exprs = append(exprs, fmt.Sprintf("%du", l.Offset))
	}
	return strings.Join(exprs, " + ")
}

// elemExpr indexes a contiguous operand at idx, adding its base offset.
func elemExpr(op Operand, idx string) string {
	if op.Layout.Offset == 0 {
		return fmt.Sprintf("%s[%s]", op.Name, idx)
	}
	return fmt.Sprintf("%s[%s + %du]", op.Name, idx, op.Layout.Offset)
}

// loadExpr reads the element at linear index idx converted to the kernel domain.
func loadExpr(d KernelDesc, op Operand, idx string) string {
	v := fmt.Sprintf("%s[%s]", op.Name, offsetExpr(op, idx))
	if laneType(op.Type) == laneType(d.Domain) {
		return v
	}
	return fmt.Sprintf("%s(%s)", laneType(d.Domain), v)
}

// storeExpr writes value (of the kernel domain) to linear index idx of op.
func storeExpr(d KernelDesc, op Operand, idx, value string) string {
	target := fmt.Sprintf("%s[%s]", op.Name, offsetExpr(op, idx))
	switch {
	case op.Type == tensor.Bool:
		return fmt.Sprintf("%s = select(0u, 1u, %s != %s);", target, value, zeroLit(d.Domain))
	case laneType(op.Type) == laneType(d.Domain):
		return fmt.Sprintf("%s = %s;", target, value)
	default:
		return fmt.Sprintf("%s = %s(%s);", target, laneType(op.Type), value)
	}
}

func zeroLit(dt tensor.DataType) string {
	switch dt {
	case tensor.Int32:
		return "0i"
	case tensor.Bool:
		return "0u"
	default:
		return "0.0f"
	}
}

func oneLit(dt tensor.DataType) string {
	switch dt {
	case tensor.Int32:
		return "1i"
	case tensor.Bool:
		return "1u"
	default:
		return "1.0f"
	}
}

func unaryExpr(op string, x string, dt tensor.DataType) (string, error) {
	switch op {
	case "exp":
		return fmt.Sprintf("exp(%s)", x), nil
	case "log":
		return fmt.Sprintf("log(%s)", x), nil
	case "negate":
		return "-" + x, nil
	case "inverse":
		return fmt.Sprintf("%s / %s", oneLit(dt), x), nil
	case "logical_not":
		return fmt.Sprintf("select(%s, %s, %s == %s)", zeroLit(dt), oneLit(dt), x, zeroLit(dt)), nil
	default:
		return "", fmt.Errorf("unknown unary op %q", op)
	}
}

func binaryExpr(op string, a, b string, dt tensor.DataType) (string, error) {
	z, o := zeroLit(dt), oneLit(dt)
	pred := func(cond string) string { return fmt.Sprintf("select(%s, %s, %s)", z, o, cond) }
	switch op {
	case "add":
		return a + " + " + b, nil
	case "subtract":
		return a + " - " + b, nil
	case "mul":
		return a + " * " + b, nil
	case "div":
		if dt == tensor.Int32 {
			return fmt.Sprintf("select(%s / %s, %s, %s == 0i)", a, b, a, b), nil
		}
		return a + " / " + b, nil
	case "equal":
		return pred(a + " == " + b), nil
	case "greater":
		return pred(a + " > " + b), nil
	case "lesser":
		return pred(a + " < " + b), nil
	case "logical_and":
		return pred(fmt.Sprintf("%s != %s && %s != %s", a, z, b, z)), nil
	case "logical_or":
		return pred(fmt.Sprintf("%s != %s || %s != %s", a, z, b, z)), nil
	default:
		return "", fmt.Errorf("unknown binary op %q", op)
	}
}
