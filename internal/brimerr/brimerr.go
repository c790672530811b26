// Package brimerr defines the error-kind taxonomy and the
// "[<section>] message" formatting every pre-fork failure is surfaced with
// on stderr. It has no dependents inside the module other than the
// packages that raise these kinds, and no dependencies of its own — kept
// tiny and leaf-level so every other package (config, listener, privilege,
// pidfile, supervisor) can import it without risking a cycle.
package brimerr

import "fmt"

// Kind enumerates the fatal-error kinds a launch can fail with.
type Kind string

const (
	KindConfig         Kind = "conf"
	KindBind           Kind = "bind"
	KindPrivilege      Kind = "privilege"
	KindPidfile        Kind = "pidfile"
	KindFactoryInit    Kind = "factory"
	KindHandlerRuntime Kind = "handler"
	KindWorkerCrash    Kind = "worker"
)

// SectionError is a fatal pre-fork error tagged with the section it
// occurred in and a Kind. Its Error() form is always
// "[<section>] <message>", with ConfigError always tagged "[conf]".
type SectionError struct {
	Kind    Kind
	Section string
	Err     error
}

func (e *SectionError) Error() string {
	section := e.Section
	if e.Kind == KindConfig {
		section = "conf"
	}
	return fmt.Sprintf("[%s] %s", section, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

// New builds a SectionError, wrapping format+args as the message.
func New(kind Kind, section, format string, args ...any) *SectionError {
	return &SectionError{Kind: kind, Section: section, Err: fmt.Errorf(format, args...)}
}

// Wrap tags an existing error with a kind and section.
func Wrap(kind Kind, section string, err error) *SectionError {
	if err == nil {
		return nil
	}
	return &SectionError{Kind: kind, Section: section, Err: err}
}
