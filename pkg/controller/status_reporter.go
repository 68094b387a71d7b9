package controller

import (
	"strings"
	"sync"
)

// ErrorReporterStackSize is the number of most recent faults kept by the controller.
const ErrorReporterStackSize = 5

// ErrorReporter keeps the engine faults raised while propagating writes.
type ErrorReporter interface {
	Push(error) error
	Top() error
	Size() int
	IsEmpty() bool
}

type errorReporter struct {
	mu sync.Mutex
	*errorStack
	errorChan chan error
}

// NewErrorReporter creates a reporter. Every pushed error is also sent to errorChan, if given,
// without blocking.
func NewErrorReporter(errorChan chan error) *errorReporter {
	return &errorReporter{errorStack: &errorStack{errors: []error{}}, errorChan: errorChan}
}

func (r *errorReporter) Push(err error) error {
	r.mu.Lock()
	r.errorStack.Push(err)
	r.mu.Unlock()

	if r.errorChan != nil {
		select {
		case r.errorChan <- err:
		default:
		}
	}
	return err
}

func (r *errorReporter) Top() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorStack.Top()
}

func (r *errorReporter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorStack.Size()
}

func (r *errorReporter) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorStack.IsEmpty()
}

// Errors returns the kept faults, oldest first.
func (r *errorReporter) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

// errorStack is a bounded error stack: pushing onto a full stack drops the oldest error.
type errorStack struct {
	errors []error
}

func (s *errorStack) Push(err error) {
	if len(s.errors) == ErrorReporterStackSize {
		copy(s.errors, s.errors[1:])
		s.errors[len(s.errors)-1] = err
		return
	}
	s.errors = append(s.errors, err)
}

func (s *errorStack) Top() error {
	if s.IsEmpty() {
		return nil
	}
	return s.errors[len(s.errors)-1]
}

func (s *errorStack) Size() int {
	return len(s.errors)
}

func (s *errorStack) IsEmpty() bool {
	return len(s.errors) == 0
}

func (s *errorStack) String() string {
	errs := []string{}
	for _, err := range s.errors {
		errs = append(errs, err.Error())
	}
	return strings.Join(errs, ",")
}
