package controller

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ErrorReporter", func() {
	It("should keep the most recent errors", func() {
		r := NewErrorReporter(nil)
		Expect(r.IsEmpty()).To(BeTrue())
		Expect(r.Top()).To(BeNil())

		for i := 0; i < ErrorReporterStackSize+2; i++ {
			Expect(r.Push(fmt.Errorf("err-%d", i))).To(HaveOccurred())
		}

		Expect(r.Size()).To(Equal(ErrorReporterStackSize))
		Expect(r.Top()).To(MatchError("err-6"))
		errs := r.Errors()
		Expect(errs[0]).To(MatchError("err-2"))
		Expect(r.errorStack.String()).To(HavePrefix("err-2,err-3"))
	})

	It("should not block on a full channel", func() {
		errorChan := make(chan error, 1)
		r := NewErrorReporter(errorChan)
		r.Push(errors.New("first"))
		r.Push(errors.New("second"))

		Expect(errorChan).To(Receive(MatchError("first")))
		Expect(errorChan).NotTo(Receive())
		Expect(r.Size()).To(Equal(2))
	})
})
