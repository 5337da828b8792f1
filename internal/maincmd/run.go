package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/mna/rbvm/lang/machine"
)

// Run parses, lowers and executes each file in turn as a top-level program,
// sharing one Thread's globals/constants/class hierarchy across all of them
// (as if they were one program split across files).
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_, procs, err := compileFiles(ctx, stdio, args...)
	if err != nil {
		return err
	}

	objectClass, consts := machine.NewObjectClassHierarchy()
	th := &machine.Thread{
		Globals:     make(map[string]machine.Value),
		Consts:      consts,
		ObjectClass: objectClass,
		Stdout:      stdio.Stdout,
		Stderr:      stdio.Stderr,
		Stdin:       stdio.Stdin,
	}

	for _, p := range procs {
		if _, rerr := th.RunProcedure(ctx, p); rerr != nil {
			fmt.Fprintln(stdio.Stderr, rerr)
			return rerr
		}
	}
	return nil
}
