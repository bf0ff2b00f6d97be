package core

import (
	"fmt"

	"github.com/funee-dev/funee/internal/ast"
)

// Fetch errors.

type NotFoundError struct{ URI string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.URI) }

type HTTPError struct {
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %d fetching %s", e.Status, e.URL)
}

type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

type RedirectLoopError struct{ URL string }

func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("redirect loop fetching %s", e.URL)
}

type HostEscapeError struct {
	Referrer  string
	Specifier string
}

func (e *HostEscapeError) Error() string {
	return fmt.Sprintf("HostEscape: remote module %s may not resolve %q to a non-http URI", e.Referrer, e.Specifier)
}

// Parse errors.

type ParseError struct {
	URI     string
	Span    ast.Span
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s: %s", e.Span.String(), e.Message)
}

// Resolution errors.

type MissingExportError struct {
	Module string
	Name   string
}

func (e *MissingExportError) Error() string {
	return fmt.Sprintf("MissingExport: module %s has no export named %q", e.Module, e.Name)
}

type ReExportCycleError struct{ Chain []string }

func (e *ReExportCycleError) Error() string {
	return fmt.Sprintf("ReExportCycle: %v", e.Chain)
}

type AmbiguousStarExportError struct {
	Module  string
	Name    string
	Sources []string
}

func (e *AmbiguousStarExportError) Error() string {
	return fmt.Sprintf("AmbiguousStarExport: %s re-exports %q from multiple sources %v", e.Module, e.Name, e.Sources)
}

type UnresolvedReferenceError struct {
	Scope string
	Name  string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("UnresolvedReference: %q is not defined in %s", e.Name, e.Scope)
}

// Macro errors.

type MacroRecursionError struct {
	Macro      string
	Iterations int
}

func (e *MacroRecursionError) Error() string {
	return fmt.Sprintf("Macro expansion exceeded max iterations (%d) expanding %s", e.Iterations, e.Macro)
}

type MacroTimeoutError struct{ Macro string }

func (e *MacroTimeoutError) Error() string {
	return fmt.Sprintf("MacroTimeout: %s did not return within its wall-clock budget", e.Macro)
}

type MacroReturnShapeError struct {
	Macro  string
	Reason string
}

func (e *MacroReturnShapeError) Error() string {
	return fmt.Sprintf("MacroReturnShape: %s returned an invalid value: %s", e.Macro, e.Reason)
}

// CreateMacroUnexpandedError is thrown by the host runtime, not the
// bundler: if createMacro ever survives to the emitted bundle, invoking
// it must fail loudly rather than silently produce a non-expanded value.
type CreateMacroUnexpandedError struct{ Name string }

func (e *CreateMacroUnexpandedError) Error() string {
	return fmt.Sprintf("CreateMacroUnexpanded: %s was never expanded by the bundler", e.Name)
}

// Emission errors.

type EmitOrderingConflictError struct{ Detail string }

func (e *EmitOrderingConflictError) Error() string {
	return fmt.Sprintf("EmitOrderingConflict: %s", e.Detail)
}
