package cliinvoker_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/relay/internal/cliinvoker"
)

var _ = Describe("Invoker", func() {
	var inv *cliinvoker.Invoker

	BeforeEach(func() {
		inv = cliinvoker.New("sh", "")
	})

	It("streams stdout and stderr line by line and reports the exit code", func() {
		var mu sync.Mutex
		var stdout, stderr []string

		res, err := inv.Run(context.Background(), 1,
			[]string{"-c", "echo out1; echo err1 >&2; echo out2; exit 0"},
			"", nil,
			func(line string) { mu.Lock(); stdout = append(stdout, line); mu.Unlock() },
			func(line string) { mu.Lock(); stderr = append(stderr, line); mu.Unlock() },
		)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.ExitCode).To(Equal(0))
		Expect(res.PID).NotTo(BeZero())
		Expect(stdout).To(Equal([]string{"out1", "out2"}))
		Expect(stderr).To(Equal([]string{"err1"}))
	})

	It("reports a non-zero exit code without treating it as an error", func() {
		res, err := inv.Run(context.Background(), 2, []string{"-c", "exit 7"}, "", nil, nil, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.ExitCode).To(Equal(7))
	})

	It("registers the child's pid so Cancel can terminate it mid-run, and unregisters after exit", func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			inv.Run(context.Background(), 3, []string{"-c", "sleep 5"}, "", nil, nil, nil)
		}()

		Eventually(func() bool {
			return inv.Cancel(3)
		}, time.Second).Should(BeTrue())

		Eventually(done, 2*time.Second).Should(BeClosed())

		Expect(inv.Cancel(3)).To(BeFalse())
	})

	It("returns false from Cancel for a job that never ran", func() {
		Expect(inv.Cancel(999)).To(BeFalse())
	})

	It("trips the circuit breaker after repeated spawn failures", func() {
		bad := cliinvoker.New("/nonexistent/coder-cli-binary", "")

		var lastErr error
		for i := 0; i < 5; i++ {
			_, lastErr = bad.Run(context.Background(), int64(i), []string{}, "", nil, nil, nil)
		}

		Expect(lastErr).To(HaveOccurred())
		Expect(lastErr.Error()).To(ContainSubstring("circuit"))
	})
})
