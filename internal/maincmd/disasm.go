package maincmd

import (
	"context"

	"github.com/mna/mainer"
	"github.com/mna/rbvm/lang/compiler"
)

// Disasm parses and lowers each file into a root Procedure and prints its
// human-readable bytecode listing (compiler.Disassemble's output), one
// listing per file, nested procedures (blocks, methods, lambdas) indented
// under their parent.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_, procs, err := compileFiles(ctx, stdio, args...)
	if err != nil {
		return err
	}
	for _, p := range procs {
		stdio.Stdout.Write([]byte(compiler.Disassemble(p)))
	}
	return nil
}
