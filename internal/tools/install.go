package tools

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

type InstallOptions struct {
	BinDir string
}

// Install builds the interpreter and the language server into BinDir.
func Install(opts InstallOptions) error {
	if opts.BinDir == "" {
		opts.BinDir = "bin"
	}

	if err := os.MkdirAll(opts.BinDir, 0o755); err != nil {
		return err
	}

	if err := goBuild("./cmd/tok", filepath.Join(opts.BinDir, "tok")); err != nil {
		return fmt.Errorf("build tok: %w", err)
	}

	if err := goBuild("./cmd/tok-lsp", filepath.Join(opts.BinDir, "tok-lsp")); err != nil {
		return fmt.Errorf("build tok-lsp: %w", err)
	}

	return nil
}

func goBuild(pkg, out string) error {
	cmd := exec.Command("go", "build", "-o", out, pkg)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
