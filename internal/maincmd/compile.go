package maincmd

import (
	"context"

	"github.com/mna/mainer"
	"github.com/mna/rbvm/lang/ast"
	"github.com/mna/rbvm/lang/compiler"
	"github.com/mna/rbvm/lang/parser"
	"github.com/mna/rbvm/lang/scanner"
	"github.com/mna/rbvm/lang/token"
)

// Compile parses and lowers each file into a root Procedure, reporting any
// parse or codegen error and printing nothing on success - the companion
// disasm command is what prints the resulting bytecode.
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_, _, err := compileFiles(ctx, stdio, args...)
	return err
}

// compileFiles parses and lowers files into root Procedures, one per file,
// printing scanner/parser/codegen errors to stdio.Stderr as they occur.
func compileFiles(ctx context.Context, stdio mainer.Stdio, files ...string) (*token.FileSet, []*compiler.Procedure, error) {
	fset, chunks, perr := parser.ParseFiles(ctx, 0, files...)
	if perr != nil {
		scanner.PrintError(stdio.Stderr, perr)
		return fset, nil, perr
	}

	byName := make(map[string]*ast.Chunk, len(chunks))
	for _, ch := range chunks {
		start, _ := ch.Span()
		file := fset.File(start)
		byName[file.Name()] = ch
	}

	procs, cerr := compiler.CompileFiles(fset, byName)
	if cerr != nil {
		scanner.PrintError(stdio.Stderr, cerr)
		return fset, nil, cerr
	}
	return fset, procs, nil
}
