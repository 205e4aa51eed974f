package spectest

import (
	"bytes"
	"strings"
	"testing"

	"tok/internal/compiler"
	"tok/internal/heap"
	"tok/internal/limits"
	"tok/internal/vm"
)

// Options configures one end-to-end run of a Tok source.
type Options struct {
	Source    string
	Stdin     string
	StressGC  bool
	MaxMemory int64
}

// Result is what the scenario assertions look at: captured stdout, the
// error category, and the raw messages.
type Result struct {
	Stdout       string
	CompileErrs  []string
	RuntimeErr   string
	RuntimeTrace string
}

func (r Result) OK() bool {
	return len(r.CompileErrs) == 0 && r.RuntimeErr == ""
}

// Run compiles and executes opts.Source on a fresh heap and VM.
func Run(t *testing.T, opts Options) Result {
	t.Helper()

	h := heap.New()
	h.SetStress(opts.StressGC)

	// The VM exists before compiling so its own allocations cannot collect
	// the compiled script before Interpret roots it.
	var stdout, stderr bytes.Buffer
	machine := vm.New(h, &stdout, &stderr, strings.NewReader(opts.Stdin))
	defer machine.Free()

	fn, diags := compiler.Compile(opts.Source, h)
	if fn == nil {
		res := Result{}
		for _, d := range diags {
			res.CompileErrs = append(res.CompileErrs, d.Message)
		}
		if len(res.CompileErrs) == 0 {
			t.Fatalf("compile returned no function and no diagnostics")
		}
		return res
	}

	if opts.MaxMemory > 0 {
		h.SetBudget(limits.NewBudget(opts.MaxMemory))
	}

	err := machine.Interpret(fn)
	res := Result{Stdout: stdout.String()}
	if err != nil {
		rerr, ok := err.(*vm.RuntimeError)
		if !ok {
			t.Fatalf("unexpected error type %T: %v", err, err)
		}
		res.RuntimeErr = rerr.Message
		res.RuntimeTrace = rerr.Trace
	}
	return res
}

// ExpectStdout runs source and fails unless it succeeds with exactly want
// on stdout.
func ExpectStdout(t *testing.T, source, want string) {
	t.Helper()
	res := Run(t, Options{Source: source})
	if !res.OK() {
		t.Fatalf("unexpected failure: compile=%v runtime=%q", res.CompileErrs, res.RuntimeErr)
	}
	if res.Stdout != want {
		t.Fatalf("stdout mismatch:\ngot:  %q\nwant: %q", res.Stdout, want)
	}
}

// ExpectRuntimeError runs source and fails unless it dies with a runtime
// error containing want.
func ExpectRuntimeError(t *testing.T, source, want string) {
	t.Helper()
	res := Run(t, Options{Source: source})
	if len(res.CompileErrs) != 0 {
		t.Fatalf("unexpected compile errors: %v", res.CompileErrs)
	}
	if res.RuntimeErr == "" {
		t.Fatalf("expected runtime error containing %q, got success with stdout %q", want, res.Stdout)
	}
	if !strings.Contains(res.RuntimeErr, want) {
		t.Fatalf("runtime error %q does not contain %q", res.RuntimeErr, want)
	}
}

// ExpectCompileError compiles source and fails unless a diagnostic contains
// want.
func ExpectCompileError(t *testing.T, source, want string) {
	t.Helper()
	res := Run(t, Options{Source: source})
	if len(res.CompileErrs) == 0 {
		t.Fatalf("expected compile error containing %q, got none (stdout %q)", want, res.Stdout)
	}
	for _, msg := range res.CompileErrs {
		if strings.Contains(msg, want) {
			return
		}
	}
	t.Fatalf("no compile error contains %q; got %v", want, res.CompileErrs)
}
