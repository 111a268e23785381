package tidy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultTool = "clang-tidy"

var defines = []string{
	"-DDEBUG",
	"-DCODE_BLOCKS=1",
	"-DGTK_DISABLE_SINGLE_INCLUDES",
	"-DGDK_PIXBUF_DISABLE_SINGLE_INCLUDES",
	"-DGSEAL_ENABLE",
	"-DWEBKIT",
}

var systemIncludes = []string{
	"/usr/include/libxml2",
	"/usr/include/goocanvas-2.0",
	"/usr/include/gtk-3.0",
	"/usr/include/at-spi2-atk/2.0",
	"/usr/include/at-spi-2.0",
	"/usr/include/dbus-1.0",
	"/usr/lib/x86_64-linux-gnu/dbus-1.0/include",
	"/usr/include/gio-unix-2.0/",
	"/usr/include/mirclient",
	"/usr/include/mircommon",
	"/usr/include/mircookie",
	"/usr/include/cairo",
	"/usr/include/pango-1.0",
	"/usr/include/harfbuzz",
	"/usr/include/atk-1.0",
	"/usr/include/gdk-pixbuf-2.0",
	"/usr/include/libpng12",
	"/usr/include/glib-2.0",
	"/usr/lib/x86_64-linux-gnu/glib-2.0/include",
	"/usr/include/pixman-1",
	"/usr/include/freetype2",
	"/usr/include/p11-kit-1",
	"/usr/include/webkitgtk-1.0",
	"/usr/include/libsoup-2.4",
	"/usr/include/json-glib-1.0",
}

// Runner executes one analyzer invocation, streaming its output to out.
type Runner func(ctx context.Context, name string, args []string, out io.Writer) error

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}

// Options selects the modernize checks and the tree to analyze.
type Options struct {
	Sources  string
	Tool     string
	Override bool
	Nullptr  bool
	Default  bool
	Fix      bool
	Runner   Runner
	Stdout   io.Writer
}

// Checks returns the -checks argument for the enabled checks.
func (o Options) Checks() string {
	var checks []string
	if o.Override {
		checks = append(checks, "modernize-use-override")
	}
	if o.Nullptr {
		checks = append(checks, "modernize-use-nullptr")
	}
	if o.Default {
		checks = append(checks, "modernize-use-default")
	}
	return "-checks=" + strings.Join(checks, ",")
}

// Args returns the analyzer arguments for one source file.
func (o Options) Args(file string) []string {
	args := []string{o.Checks()}
	if o.Fix {
		args = append(args, "-fix")
	}
	args = append(args, file, "--", "-std=c++11")
	args = append(args, defines...)
	for _, dir := range systemIncludes {
		args = append(args, "-I"+dir)
	}
	for _, dir := range []string{"BellePoule", "common", filepath.Join("common", "network")} {
		args = append(args, "-I"+filepath.Join(o.Sources, dir))
	}
	return args
}

// Summary counts analyzed files and failed invocations.
type Summary struct {
	Files    int
	Failures int
}

// Run analyzes every .cpp and .hpp file below Sources, skipping LivePoule directories.
// A failing invocation is reported and counted; the walk continues.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if strings.TrimSpace(opts.Sources) == "" {
		return Summary{}, errors.New("sources directory is required")
	}
	if opts.Tool == "" {
		opts.Tool = defaultTool
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	info, err := os.Stat(opts.Sources)
	if err != nil {
		return Summary{}, fmt.Errorf("stat sources: %w", err)
	}
	if !info.IsDir() {
		return Summary{}, fmt.Errorf("sources %q is not a directory", opts.Sources)
	}

	var summary Summary
	err = filepath.WalkDir(opts.Sources, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if strings.HasSuffix(p, "LivePoule") {
				return filepath.SkipDir
			}
			fmt.Fprintf(opts.Stdout, "\n%s\n", p)
			return nil
		}
		if !isSource(d.Name()) {
			return nil
		}

		fmt.Fprintf(opts.Stdout, "   %s\n", d.Name())
		summary.Files++
		if err := opts.Runner(ctx, opts.Tool, opts.Args(p), opts.Stdout); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			summary.Failures++
			fmt.Fprintf(opts.Stdout, "   %s: %v\n", d.Name(), err)
		}
		return nil
	})
	return summary, err
}

func isSource(name string) bool {
	return strings.HasSuffix(name, ".cpp") || strings.HasSuffix(name, ".hpp")
}
