package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"tok/internal/compiler"
	"tok/internal/config"
	"tok/internal/heap"
	"tok/internal/lexer"
	"tok/internal/limits"
	"tok/internal/repl"
	"tok/internal/token"
	"tok/internal/tools"
	"tok/internal/vm"
)

const (
	exitOK           = 0
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
	exitUsage        = 64
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "tools" {
		runTools(os.Args[2:])
		return
	}

	tokensMode := flag.Bool("tokens", false, "print the token stream instead of running")
	disMode := flag.Bool("dis", false, "print the compiled bytecode instead of running")
	stressGC := flag.Bool("stressgc", false, "collect on every allocation")
	maxMem := flag.Int64("maxmem", 0, "heap ceiling in bytes (0 = unlimited)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		if *tokensMode || *disMode {
			fmt.Fprintln(os.Stderr, "repl does not support -tokens or -dis")
			os.Exit(exitUsage)
		}
		repl.Start(os.Stdin, os.Stdout, os.Stderr, repl.Options{
			StressGC:  *stressGC,
			MaxMemory: *maxMem,
		})
		return
	}

	target := args[0]
	rest := args[1:]
	if target == "run" {
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: tok run <pathOrDir>")
			os.Exit(exitUsage)
		}
		target = rest[0]
	} else if len(rest) != 0 {
		fmt.Fprintln(os.Stderr, "usage: tok [flags] [path]")
		os.Exit(exitUsage)
	}

	path, err := resolveTarget(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file \"%s\".\n", target)
		os.Exit(exitIOError)
	}

	os.Exit(runFile(path, *tokensMode, *disMode, *stressGC, *maxMem))
}

// resolveTarget maps a directory argument through its tok.proj manifest to
// the entry script; file arguments pass through.
func resolveTarget(target string) (string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return target, nil
	}

	m, err := config.LoadManifest(filepath.Join(target, "tok.proj"))
	if err != nil {
		return "", err
	}
	return filepath.Join(target, m.Entry), nil
}

func runFile(path string, tokensMode, disMode, stressGC bool, maxMem int64) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file \"%s\".\n", path)
		return exitIOError
	}

	if tokensMode {
		printTokens(string(source))
		return exitOK
	}

	h := heap.New()
	h.SetStress(stressGC)

	// The VM exists before compiling so its own allocations cannot collect
	// the compiled script before Interpret roots it.
	machine := vm.New(h, os.Stdout, os.Stderr, os.Stdin)
	defer machine.Free()

	fn, diags := compiler.Compile(string(source), h)
	if fn == nil {
		for _, d := range diags {
			fmt.Fprintln(os.Stderr, d.FormatLine())
		}
		return exitCompileError
	}

	if disMode {
		fmt.Print(compiler.DisassembleFunction(fn))
		return exitOK
	}

	if maxMem > 0 {
		h.SetBudget(limits.NewBudget(maxMem))
	}

	if err := machine.Interpret(fn); err != nil {
		return exitRuntimeError
	}
	return exitOK
}

func runTools(args []string) {
	if len(args) != 1 || args[0] != "install" {
		fmt.Fprintln(os.Stderr, "usage: tok tools install")
		os.Exit(exitUsage)
	}
	if err := tools.Install(tools.InstallOptions{}); err != nil {
		fmt.Fprintln(os.Stderr, "install error:", err)
		os.Exit(1)
	}
}

// printTokens dumps the scanner output one token per line, grouping by
// source line the way the debug driver always has.
func printTokens(source string) {
	l := lexer.New(source)
	line := -1
	for {
		tok := l.NextToken()
		if tok.Line != line {
			fmt.Printf("%4d ", tok.Line)
			line = tok.Line
		} else {
			fmt.Print("   | ")
		}
		fmt.Printf("%-10s '%s'\n", tok.Type, tok.Literal)

		if tok.Type == token.EOF {
			break
		}
	}
}
