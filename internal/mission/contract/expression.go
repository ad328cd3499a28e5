package contract

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/autopeer-io/houston/internal/mission/core"
)

// expressionEnv declares the variables available to user expressions.
var expressionEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable(core.VarAltitude, cel.DoubleType),
		cel.Variable(core.VarLatitude, cel.DoubleType),
		cel.Variable(core.VarLongitude, cel.DoubleType),
		cel.Variable(core.VarBattery, cel.DoubleType),
		cel.Variable(core.VarArmed, cel.BoolType),
		cel.Variable(core.VarMode, cel.StringType),
		// elapsed is the number of seconds since the initial snapshot.
		cel.Variable("elapsed", cel.DoubleType),
	)
	if err != nil {
		panic(fmt.Sprintf("cel environment: %v", err))
	}
	return env
}()

// CompileExpression turns a boolean CEL expression into a predicate with
// the given role. Example: `battery > 20.0 && altitude < 60.0`.
func CompileExpression(name, expr string, role Role) (Predicate, error) {
	ast, issues := expressionEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return Predicate{}, fmt.Errorf("compile %q: %w", name, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return Predicate{}, fmt.Errorf("expression %q must be boolean, got %s", name, ast.OutputType())
	}
	prg, err := expressionEnv.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return Predicate{}, fmt.Errorf("program %q: %w", name, err)
	}

	return Predicate{
		Name:        name,
		Description: expr,
		Role:        role,
		Check: func(in Inputs) (bool, error) {
			vars, err := activation(in)
			if err != nil {
				return false, err
			}
			out, _, err := prg.Eval(vars)
			if err != nil {
				return false, fmt.Errorf("eval: %w", err)
			}
			ok, isBool := out.Value().(bool)
			if !isBool {
				return false, fmt.Errorf("result not bool")
			}
			return ok, nil
		},
	}, nil
}

func activation(in Inputs) (map[string]any, error) {
	vars := make(map[string]any, 7)
	for _, name := range []string{core.VarAltitude, core.VarLatitude, core.VarLongitude, core.VarBattery} {
		f, err := in.Now.Float(name)
		if err != nil {
			return nil, err
		}
		vars[name] = f
	}
	armed, err := in.Now.Bool(core.VarArmed)
	if err != nil {
		return nil, err
	}
	mode, err := in.Now.String(core.VarMode)
	if err != nil {
		return nil, err
	}
	vars[core.VarArmed] = armed
	vars[core.VarMode] = mode
	vars["elapsed"] = in.Now.Taken.Sub(in.Initial.Taken).Seconds()
	return vars, nil
}
