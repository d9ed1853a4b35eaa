package sandbox

import (
	"context"
	"errors"

	"github.com/dop251/goja"
)

// Interpreter evaluates script text against a set of named bindings under a
// caller-imposed deadline. The bindings are the script's entire capability
// surface: anything not bound does not exist.
type Interpreter interface {
	Evaluate(ctx context.Context, script string, bindings map[string]any) (any, error)
}

// gojaInterpreter runs scripts on a fresh goja VM per evaluation. A VM is
// never reused, so an interrupted run cannot leak state into a later one.
type gojaInterpreter struct{}

// NewInterpreter returns the default goja-backed interpreter.
func NewInterpreter() Interpreter {
	return &gojaInterpreter{}
}

// Evaluate runs script with the given bindings. Context cancellation
// interrupts the VM; the returned error is then ctx.Err().
func (g *gojaInterpreter) Evaluate(ctx context.Context, script string, bindings map[string]any) (any, error) {
	vm := goja.New()

	// A fresh VM exposes no host capabilities. Dangerous module-system
	// globals are additionally pinned to undefined so scripts probing for
	// them fail structurally.
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())
	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})

	for name, binding := range bindings {
		if err := vm.Set(name, binding); err != nil {
			return nil, err
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	val, err := vm.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}
