//go:build !v8

// Package jsvm provides the concrete core.JSRuntime implementations: a
// pure-Go QuickJS-backed runtime by default, or a cgo V8-backed runtime
// behind the `v8` build tag. Both the macro sandbox (internal/macro) and
// the default host runtime (internal/hostruntime) build fresh runtimes
// through New.
package jsvm

import (
	"fmt"

	"modernc.org/quickjs"

	"github.com/funee-dev/funee/internal/core"
)

type quickjsRuntime struct {
	vm *quickjs.VM
}

// New creates a fresh, single-use core.JSRuntime backed by QuickJS.
func New() (core.JSRuntime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating quickjs VM: %w", err)
	}
	return &quickjsRuntime{vm: vm}, nil
}

func (r *quickjsRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

func (r *quickjsRuntime) EvalString(js string) (string, error) {
	res, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", nil
	}
	return fmt.Sprint(res), nil
}

func (r *quickjsRuntime) EvalBool(js string) (bool, error) {
	res, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", res)
	}
	return b, nil
}

// RegisterFunc registers a Go function as a JS global.
// modernc.org/quickjs's RegisterFunc returns multi-value (T, error)
// results as a [value, error] JS array rather than throwing, so a thin
// JS wrapper unpacks that shape into a throw-on-error call.
func (r *quickjsRuntime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrap := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError(%q + ": " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrap)
}

func (r *quickjsRuntime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

func (r *quickjsRuntime) RunMicrotasks() {
	executePendingJobs(r.vm)
}

func (r *quickjsRuntime) Close() {
	r.vm.Close()
}
