package scheduler_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/scheduler"
)

var _ = Describe("Scheduler", func() {
	var (
		jobs     *fakeJobStore
		stores   *fakeJobStores
		runner   *fakeRunner
		router   *fakeRouter
		can      *fakeCanceller
		sched    *scheduler.Scheduler
	)

	BeforeEach(func() {
		jobs = &fakeJobStore{}
		stores = &fakeJobStores{jobs: jobs}
		runner = &fakeRunner{}
		router = &fakeRouter{runner: runner}
		can = &fakeCanceller{}

		sched = scheduler.New(scheduler.Config{
			Stores:        stores,
			Router:        router,
			Canceller:     can,
			MaxConcurrent: 2,
		})
	})

	It("claims queued jobs up to MaxConcurrent and dispatches each to a runner", func() {
		jobs.queued = []model.Job{{ID: 1}, {ID: 2}, {ID: 3}}

		ctx, cancel := context.WithCancel(context.Background())
		go sched.Run(ctx)
		defer func() { cancel(); sched.Stop() }()

		Eventually(func() []int64 {
			runner.mu.Lock()
			defer runner.mu.Unlock()
			return append([]int64{}, runner.ran...)
		}).Should(ConsistOf(int64(1), int64(2)))

		Consistently(func() []int64 {
			runner.mu.Lock()
			defer runner.mu.Unlock()
			return append([]int64{}, runner.ran...)
		}, 200*time.Millisecond).Should(HaveLen(2))
	})

	It("re-runs dispatch after a job finishes, picking up work queued meanwhile", func() {
		runner.blockCh = make(chan struct{})
		runner.onFinish = jobs.finish
		jobs.queued = []model.Job{{ID: 1}}

		ctx, cancel := context.WithCancel(context.Background())
		go sched.Run(ctx)
		defer func() { cancel(); sched.Stop() }()

		Eventually(func() bool {
			jobs.mu.Lock()
			defer jobs.mu.Unlock()
			return jobs.claimed[1]
		}).Should(BeTrue())

		jobs.mu.Lock()
		jobs.queued = append(jobs.queued, model.Job{ID: 2})
		jobs.mu.Unlock()

		close(runner.blockCh)

		Eventually(func() []int64 {
			runner.mu.Lock()
			defer runner.mu.Unlock()
			return append([]int64{}, runner.ran...)
		}).Should(ConsistOf(int64(1), int64(2)))
	})

	It("recovers interrupted jobs by marking them failed before accepting new work", func() {
		jobs.running = 3

		Expect(sched.Recover(context.Background())).To(Succeed())

		Expect(jobs.running).To(Equal(0))
	})

	Describe("Cancel", func() {
		It("terminates a running job's subprocess and marks it cancelled", func() {
			jobs.getByIDFn = func(_ context.Context, id int64) (*model.Job, error) {
				return &model.Job{ID: id, Status: model.JobStatusRunning}, nil
			}

			Expect(sched.Cancel(context.Background(), 9)).To(Succeed())

			Expect(can.cancelled).To(ConsistOf(int64(9)))
			Expect(jobs.updates).To(HaveLen(1))
			Expect(jobs.updates[0].Status).To(Equal(model.JobStatusCancelled))
		})

		It("is a no-op once the job already reached a terminal state", func() {
			jobs.getByIDFn = func(_ context.Context, id int64) (*model.Job, error) {
				return &model.Job{ID: id, Status: model.JobStatusCompleted}, nil
			}

			Expect(sched.Cancel(context.Background(), 9)).To(Succeed())

			Expect(can.cancelled).To(BeEmpty())
			Expect(jobs.updates).To(BeEmpty())
		})
	})
})
