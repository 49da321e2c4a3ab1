package runner_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/relay/internal/cliinvoker"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/runner"
)

func specOutputJSON(phase string) string {
	switch phase {
	case "constitution":
		return `{"constitution":"Use dependency injection.","techStack":"Go","keyPatterns":["ports and adapters"]}`
	case "spec":
		return `{"spec":{"overview":"Add widgets.","requirements":[{"number":1,"text":"widgets list","acceptanceCriteria":["shows all widgets"]}]}}`
	case "clarifications":
		return `{"clarifications":[{"id":"c1","question":"which widget color?"}]}`
	case "plan":
		return `{"plan":{"steps":["add model","add handler"]}}`
	case "analysis-pass":
		return `{"analysis":{"passed":true,"notes":["looks consistent"]}}`
	case "analysis-fail":
		return `{"analysis":{"passed":false,"notes":["plan contradicts spec"]}}`
	case "tasks":
		return `{"tasks":[{"id":1,"title":"add model"}]}`
	}
	return "{}"
}

var _ = Describe("SpecPipelineRunner", func() {
	var (
		stores   *fakeStores
		ws       *fakeWorkspace
		invoker  *fakeInvoker
		wake     *fakeWake
		rnr      *runner.SpecPipelineRunner
		featID   int64
		clientID int64
	)

	BeforeEach(func() {
		stores = newFakeStores()
		ws = &fakeWorkspace{}
		invoker = &fakeInvoker{}
		wake = &fakeWake{}
		featID = 10
		clientID = 20

		rnr = runner.NewSpecPipelineRunner(runner.Deps{
			Stores:    stores,
			Workspace: ws,
			Invoker:   invoker,
			Feedback:  &fakeFeedback{},
			Wake:      wake,
			CLIModel:  "claude",
		})
	})

	phaseStr := func(p model.SpecPhase) *string { s := string(p); return &s }

	newJob := func(phase model.SpecPhase) model.Job {
		return model.Job{
			ID:        1,
			ClientID:  clientID,
			FeatureID: &featID,
			JobType:   model.JobTypeSpec,
			Status:    model.JobStatusRunning,
			SpecPhase: phaseStr(phase),
		}
	}

	It("fails the job up front when it has no feature_id", func() {
		job := newJob(model.SpecPhaseSpec)
		job.FeatureID = nil

		rnr.Run(context.Background(), job)

		Expect(stores.jobs.updated).To(HaveLen(1))
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusFailed))
	})

	It("short-circuits the constitution phase using the client's cached constitution", func() {
		cached := "Use dependency injection."
		stores.features.getByIDFn = func(ctx context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: featID, ClientID: clientID, Title: "Widgets"}, nil
		}
		stores.clients = &fakeClientStoreWithConstitution{constitution: cached}

		rnr.Run(context.Background(), newJob(model.SpecPhaseConstitution))

		Expect(invoker.calls).To(BeEmpty())
		Expect(stores.jobs.updated).To(HaveLen(1))
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusCompleted))
	})

	It("runs the constitution phase through the CLI when the client has no cached constitution, then auto-progresses", func() {
		stores.features.getByIDFn = func(ctx context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: featID, ClientID: clientID, Title: "Widgets"}, nil
		}
		invoker.runFn = func(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error) {
			onStdout(specOutputJSON("constitution"))
			return cliinvoker.Result{ExitCode: 0}, nil
		}

		var created []model.Job
		stores.jobs.createFn = func(ctx context.Context, job *model.Job) error {
			created = append(created, *job)
			return nil
		}

		rnr.Run(context.Background(), newJob(model.SpecPhaseConstitution))

		Expect(stores.jobs.updated).To(HaveLen(1))
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusCompleted))
		Expect(created).To(HaveLen(1))
		Expect(*created[0].SpecPhase).To(Equal(string(model.SpecPhaseSpec)))
		Expect(wake.published).To(Equal(1))
	})

	It("waits for a human once the clarifications phase returns an unanswered question", func() {
		stores.features.getByIDFn = func(ctx context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: featID, ClientID: clientID, Title: "Widgets"}, nil
		}
		invoker.runFn = func(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error) {
			onStdout(specOutputJSON("clarifications"))
			return cliinvoker.Result{ExitCode: 0}, nil
		}

		var created []model.Job
		stores.jobs.createFn = func(ctx context.Context, job *model.Job) error {
			created = append(created, *job)
			return nil
		}

		rnr.Run(context.Background(), newJob(model.SpecPhaseClarifications))

		Expect(created).To(BeEmpty())
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusCompleted))
	})

	It("halts without advancing when the analysis phase reports failure", func() {
		stores.features.getByIDFn = func(ctx context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: featID, ClientID: clientID, Title: "Widgets"}, nil
		}
		invoker.runFn = func(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error) {
			onStdout(specOutputJSON("analysis-fail"))
			return cliinvoker.Result{ExitCode: 0}, nil
		}

		var created []model.Job
		stores.jobs.createFn = func(ctx context.Context, job *model.Job) error {
			created = append(created, *job)
			return nil
		}

		rnr.Run(context.Background(), newJob(model.SpecPhaseAnalysis))

		Expect(created).To(BeEmpty())
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusCompleted))
	})

	It("runs the plan phase through the judge/improve loop and persists the judged plan", func() {
		stores.features.getByIDFn = func(ctx context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: featID, ClientID: clientID, Title: "Widgets"}, nil
		}

		call := 0
		invoker.runFn = func(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error) {
			call++
			switch call {
			case 1:
				onStdout(specOutputJSON("plan"))
			case 2:
				onStdout(`{"passed":true,"overallScore":90,"criteria":[],"summary":"fine","improvements":[]}`)
			}
			return cliinvoker.Result{ExitCode: 0}, nil
		}

		var persisted *model.SpecOutput
		stores.features.specOutputFn = func(ctx context.Context, id int64, out *model.SpecOutput) error {
			persisted = out
			return nil
		}

		rnr.Run(context.Background(), newJob(model.SpecPhasePlan))

		Expect(call).To(Equal(2))
		Expect(persisted).NotTo(BeNil())
		Expect(persisted.Plan).NotTo(BeNil())
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusCompleted))
	})

	It("fails the job when the phase prompt's CLI invocation exits non-zero", func() {
		stores.features.getByIDFn = func(ctx context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: featID, ClientID: clientID, Title: "Widgets"}, nil
		}
		invoker.runFn = func(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error) {
			return cliinvoker.Result{ExitCode: 1}, nil
		}

		rnr.Run(context.Background(), newJob(model.SpecPhaseSpec))

		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusFailed))
	})

	It("completes the pipeline on the terminal tasks phase without enqueuing a successor", func() {
		stores.features.getByIDFn = func(ctx context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: featID, ClientID: clientID, Title: "Widgets"}, nil
		}
		invoker.runFn = func(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error) {
			onStdout(specOutputJSON("tasks"))
			return cliinvoker.Result{ExitCode: 0}, nil
		}

		var created []model.Job
		stores.jobs.createFn = func(ctx context.Context, job *model.Job) error {
			created = append(created, *job)
			return nil
		}

		rnr.Run(context.Background(), newJob(model.SpecPhaseTasks))

		Expect(created).To(BeEmpty())
		Expect(wake.published).To(Equal(0))
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusCompleted))
	})
})

// fakeClientStoreWithConstitution answers GetByID with a client that already
// carries a cached constitution, exercising the constitution phase's
// short-circuit path.
type fakeClientStoreWithConstitution struct {
	constitution string
}

func (f *fakeClientStoreWithConstitution) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	c := f.constitution
	return &model.Client{ID: id, Name: "Acme", Constitution: &c}, nil
}

func (f *fakeClientStoreWithConstitution) UpdateConstitution(ctx context.Context, id int64, constitution string) error {
	return nil
}
