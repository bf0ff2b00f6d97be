//go:build !v8

package jsvm

import (
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// modernc.org/quickjs never drains the engine's pending-job queue, so
// Promise callbacks scheduled inside a VM would otherwise never run. The
// C entry point XJS_ExecutePendingJob is reachable through
// modernc.org/libquickjs, but it needs the VM's *libc.TLS and JSRuntime
// handle, and the wrapper keeps both in unexported fields
// (vm.runtime.tls, vm.runtime.cRuntime) with no accessor. Reading them
// out via reflection is the only way in; the field names are pinned to
// modernc.org/quickjs v0.17.1, and a layout mismatch degrades to "no
// microtasks run" rather than a crash.

// executePendingJobs drains the queue, returning how many jobs ran.
func executePendingJobs(vm *quickjs.VM) int {
	tls, rt, ok := vmInternals(vm)
	if !ok {
		return 0
	}
	n := 0
	for lib.XJS_ExecutePendingJob(tls, rt, 0) > 0 {
		n++
	}
	return n
}

// vmInternals pulls the TLS and runtime handle out of vm's unexported
// runtime field.
func vmInternals(vm *quickjs.VM) (*libc.TLS, uintptr, bool) {
	rtField := reflect.ValueOf(vm).Elem().FieldByName("runtime")
	if !rtField.IsValid() || rtField.IsNil() {
		return nil, 0, false
	}
	rt := reflect.NewAt(rtField.Type().Elem(), unsafe.Pointer(rtField.Pointer())).Elem()

	tlsField := rt.FieldByName("tls")
	crtField := rt.FieldByName("cRuntime")
	if !tlsField.IsValid() || tlsField.IsNil() || !crtField.IsValid() {
		return nil, 0, false
	}
	return (*libc.TLS)(unsafe.Pointer(tlsField.Pointer())), uintptr(crtField.Uint()), true
}
