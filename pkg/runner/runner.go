// Package runner executes prepared VASP run directories, one at a time,
// and retrieves their outputs when the process exits.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/calculation"
	"github.com/cusptools/cusp/pkg/config"
	"github.com/cusptools/cusp/pkg/custodian"
	"github.com/cusptools/cusp/pkg/parser"
	"github.com/cusptools/cusp/pkg/potcar"
	"github.com/cusptools/cusp/pkg/vasp"
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// OutputsDirName is the subdirectory of a job directory that holds the
// retrieved and archived output files.
const OutputsDirName = "outputs"

// PotcarSpec selects the pseudo-potentials of a submission. The default
// name for every element is the element symbol itself; Names overrides
// the selection per element (Si_sv selects Si_sv for silicon).
type PotcarSpec struct {
	Functional string   `json:"functional" yaml:"functional"`
	Names      []string `json:"names,omitempty" yaml:"names,omitempty"`
}

// JobSpec is everything needed to prepare and run one calculation. It is
// the wire form of a submission: potentials are given by functional and
// name and resolved against the library on the daemon side.
//
// Incars (plural) turns the submission into a multi-relax run: the stages
// execute in order, each one restarting from the previous stage's
// directory with CONTCAR promoted to POSCAR and only the INCAR replaced.
type JobSpec struct {
	Name      string                     `json:"name,omitempty" yaml:"name,omitempty"`
	Incar     vasp.Incar                 `json:"incar,omitempty" yaml:"incar,omitempty"`
	Incars    []vasp.Incar               `json:"incars,omitempty" yaml:"incars,omitempty"`
	Kpoints   *vasp.KpointsOptions       `json:"kpoints,omitempty" yaml:"kpoints,omitempty"`
	Poscar    *vasp.Poscar               `json:"poscar,omitempty" yaml:"poscar,omitempty"`
	NEBImages map[string]*vasp.Poscar    `json:"nebImages,omitempty" yaml:"nebImages,omitempty"`
	Potcar    *PotcarSpec                `json:"potcar,omitempty" yaml:"potcar,omitempty"`
	Custodian *custodian.Options         `json:"custodian,omitempty" yaml:"custodian,omitempty"`
	Restart   *calculation.RestartInputs `json:"restart,omitempty" yaml:"restart,omitempty"`
	Parser    parser.Options             `json:"parser,omitempty" yaml:"parser,omitempty"`
}

// inputs resolves the wire spec into typed calculation inputs. For a
// multi-relax submission these are the inputs of the first stage.
func (spec *JobSpec) inputs(store *potcar.Store) (calculation.Inputs, error) {
	in := calculation.Inputs{
		Incar:     spec.Incar,
		Poscar:    spec.Poscar,
		NEBImages: spec.NEBImages,
		Restart:   spec.Restart,
	}

	if len(spec.Incars) > 0 {
		if len(spec.Incar) > 0 {
			return calculation.Inputs{}, fmt.Errorf("incar and incars cannot be set at the same time")
		}
		if spec.Restart != nil {
			return calculation.Inputs{}, fmt.Errorf("a multi-relax submission cannot restart from a parent run")
		}
		if len(spec.NEBImages) > 0 {
			return calculation.Inputs{}, fmt.Errorf("a multi-relax submission takes a single poscar, not NEB images")
		}
		in.Incar = spec.Incars[0]
	}

	// The reference structure orders the POTCAR and anchors density-based
	// k-point grids. For NEB runs the first image serves both purposes.
	structure := spec.Poscar
	if structure == nil && len(spec.NEBImages) > 0 {
		keys := make([]string, 0, len(spec.NEBImages))
		for key := range spec.NEBImages {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		structure = spec.NEBImages[keys[0]]
	}

	if spec.Kpoints != nil {
		kpoints, err := vasp.NewKpoints(*spec.Kpoints, structure)
		if err != nil {
			return calculation.Inputs{}, err
		}
		in.Kpoints = kpoints
	}

	if spec.Potcar != nil {
		if structure == nil {
			return calculation.Inputs{}, fmt.Errorf("potential selection requires a structure")
		}
		overrides, err := potcar.OverridesFromNames(spec.Potcar.Names)
		if err != nil {
			return calculation.Inputs{}, err
		}
		refs, err := store.ReferencesForStructure(structure, spec.Potcar.Functional, overrides)
		if err != nil {
			return calculation.Inputs{}, err
		}
		in.Potcar = refs
	}

	if spec.Custodian != nil {
		in.Custodian = &calculation.CustodianInputs{Options: *spec.Custodian}
	}

	return in, nil
}

// Job is the record of a submitted calculation. Fields other than ID
// change as the job moves through its lifecycle.
type Job struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Dir         string         `json:"dir"`
	State       State          `json:"state"`
	Custodian   bool           `json:"custodian"`
	SubmittedAt time.Time      `json:"submittedAt"`
	StartedAt   time.Time      `json:"startedAt,omitempty"`
	EndedAt     time.Time      `json:"endedAt,omitempty"`
	ExitCode    int            `json:"exitCode"`
	Error       string         `json:"error,omitempty"`
	Outputs     *parser.Result `json:"outputs,omitempty"`
	// Stages is the number of chained relaxation stages of a multi-relax
	// job, zero for a plain submission. Stage is the 1-based stage that
	// is currently running or ran last.
	Stages int `json:"stages,omitempty"`
	Stage  int `json:"stage,omitempty"`

	parserOpts     parser.Options
	stageIncars    []vasp.Incar
	stageCustodian *custodian.Options
}

// stageDir returns the run directory of the given 1-based stage of a
// multi-relax job.
func stageDir(jobDir string, stage int) string {
	return filepath.Join(jobDir, fmt.Sprintf("relax_%02d", stage))
}

// Runner owns the job table and the single worker that drains the
// queue. Jobs run sequentially in submission order.
type Runner struct {
	conf  config.Config
	store *potcar.Store

	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string

	queue chan string
}

// queueSize bounds how many jobs can be waiting before Submit blocks.
const queueSize = 256

func New(conf config.Config, store *potcar.Store) *Runner {
	return &Runner{
		conf:  conf,
		store: store,
		jobs:  make(map[string]*Job),
		queue: make(chan string, queueSize),
	}
}

// Start runs the worker loop until ctx is canceled. It is meant to be
// called in its own goroutine.
func (r *Runner) Start(ctx context.Context) {
	logrus.Debugln("runner loop starts")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("runner loop stopped")
			return
		case id := <-r.queue:
			r.runJob(ctx, id)
		}
	}
}

// Submit prepares a run directory under the configured work dir and
// queues the job for execution.
func (r *Runner) Submit(spec JobSpec) (Job, error) {
	inputs, err := spec.inputs(r.store)
	if err != nil {
		return Job{}, err
	}
	calc, err := calculation.New(r.store, inputs)
	if err != nil {
		return Job{}, err
	}

	id := uuid.NewString()
	dir := filepath.Join(r.conf.WorkDir(), id)

	var vaspCmd []string
	if inputs.Custodian != nil {
		vaspCmd = VaspCommand(r.conf)
	}

	runDir := dir
	if len(spec.Incars) > 1 {
		runDir = stageDir(dir, 1)
	}
	if err := calc.Prepare(runDir, vaspCmd); err != nil {
		return Job{}, err
	}

	job := &Job{
		ID:          id,
		Name:        spec.Name,
		Dir:         dir,
		State:       StateQueued,
		Custodian:   inputs.Custodian != nil,
		SubmittedAt: time.Now(),
		parserOpts:  spec.Parser,
	}
	if len(spec.Incars) > 1 {
		job.Stages = len(spec.Incars)
		job.stageIncars = spec.Incars[1:]
		job.stageCustodian = spec.Custodian
	}

	r.mu.Lock()
	r.jobs[id] = job
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.queue <- id

	logrus.WithFields(logrus.Fields{
		"id":        job.ID,
		"name":      job.Name,
		"dir":       job.Dir,
		"custodian": job.Custodian,
	}).Info("job submitted")

	return *job, nil
}

// Job returns a snapshot of the job with the given id.
func (r *Runner) Job(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns snapshots of all jobs in submission order.
func (r *Runner) Jobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]Job, 0, len(r.order))
	for _, id := range r.order {
		jobs = append(jobs, *r.jobs[id])
	}
	return jobs
}

func (r *Runner) setState(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}

func (r *Runner) runJob(ctx context.Context, id string) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		logrus.Errorf("queued job %s not found in job table", id)
		return
	}

	r.setState(id, func(j *Job) {
		j.State = StateRunning
		j.StartedAt = time.Now()
	})

	logrus.WithFields(logrus.Fields{
		"id":  job.ID,
		"dir": job.Dir,
	}).Info("job started")

	exitCode, runErr := r.run(ctx, job)

	var result *parser.Result
	retrieveErr := runErr
	if retrieveErr == nil {
		result, retrieveErr = r.retrieve(job)
	}

	r.setState(id, func(j *Job) {
		j.EndedAt = time.Now()
		j.ExitCode = exitCode
		j.Outputs = result
		if retrieveErr != nil {
			j.State = StateFailed
			j.Error = retrieveErr.Error()
		} else {
			j.State = StateFinished
		}
	})

	if retrieveErr != nil {
		logrus.WithFields(logrus.Fields{
			"id":       job.ID,
			"exitCode": exitCode,
		}).Errorf("job failed: %v", retrieveErr)
		return
	}

	logrus.WithFields(logrus.Fields{
		"id":       job.ID,
		"exitCode": exitCode,
		"outputs":  len(result.Outputs),
	}).Info("job finished")
}

// run executes the job, driving all stages of a multi-relax submission
// in order. The exit code of the last executed stage is reported.
func (r *Runner) run(ctx context.Context, job *Job) (int, error) {
	if job.Stages == 0 {
		return r.execute(ctx, job, job.Dir)
	}

	exitCode := 0
	for stage := 1; stage <= job.Stages; stage++ {
		if stage > 1 {
			if err := r.prepareStage(job, stage); err != nil {
				return exitCode, pkgerrors.Wrapf(err, "failed to prepare relaxation stage %d", stage)
			}
		}
		r.setState(job.ID, func(j *Job) { j.Stage = stage })
		logrus.WithFields(logrus.Fields{
			"id":    job.ID,
			"stage": stage,
		}).Info("relaxation stage started")

		var err error
		exitCode, err = r.execute(ctx, job, stageDir(job.Dir, stage))
		if err != nil {
			return exitCode, pkgerrors.Wrapf(err, "relaxation stage %d failed", stage)
		}
	}
	return exitCode, nil
}

// prepareStage builds the run directory for stage two onwards, restarting
// from the previous stage with only the INCAR replaced.
func (r *Runner) prepareStage(job *Job, stage int) error {
	inputs := calculation.Inputs{
		Incar:   job.stageIncars[stage-2],
		Restart: &calculation.RestartInputs{Folder: stageDir(job.Dir, stage-1)},
	}
	if job.stageCustodian != nil {
		inputs.Custodian = &calculation.CustodianInputs{Options: *job.stageCustodian}
	}

	calc, err := calculation.New(r.store, inputs)
	if err != nil {
		return err
	}
	var vaspCmd []string
	if inputs.Custodian != nil {
		vaspCmd = VaspCommand(r.conf)
	}
	return calc.Prepare(stageDir(job.Dir, stage), vaspCmd)
}

// execute runs either the custodian wrapper or VASP directly inside the
// given run directory, with stdout and stderr captured to files.
func (r *Runner) execute(ctx context.Context, job *Job, dir string) (int, error) {
	argv := Command(r.conf, job.Custodian)

	stdout, err := os.Create(filepath.Join(dir, calculation.StdoutName))
	if err != nil {
		return -1, pkgerrors.Wrapf(err, "failed to create %s", calculation.StdoutName)
	}
	defer stdout.Close()

	stderr, err := os.Create(filepath.Join(dir, calculation.StderrName))
	if err != nil {
		return -1, pkgerrors.Wrapf(err, "failed to create %s", calculation.StderrName)
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), pkgerrors.Wrapf(err, "command %v failed", argv)
		}
		return -1, pkgerrors.Wrapf(err, "failed to run command %v", argv)
	}
	return cmd.ProcessState.ExitCode(), nil
}

// retrieve parses the run directory into the outputs folder. A
// multi-relax job retrieves the final stage only.
func (r *Runner) retrieve(job *Job) (*parser.Result, error) {
	runDir := job.Dir
	if job.Stages > 0 {
		runDir = stageDir(job.Dir, job.Stages)
	}
	outDir := filepath.Join(job.Dir, OutputsDirName)
	return parser.Parse(runDir, outDir, job.parserOpts)
}

// VaspCommand assembles the command that launches VASP itself,
// including the MPI launcher when configured. This is what goes into
// the custodian spec as $vasp_cmd.
func VaspCommand(conf config.Config) []string {
	var argv []string
	if conf.WithMPI() {
		argv = append(argv, conf.MpirunCommand()...)
		if n := conf.MPIProcs(); n > 0 {
			argv = append(argv, "-np", strconv.Itoa(n))
		}
	}
	return append(argv, conf.VaspCommand())
}

// Command assembles the argv the runner executes. The custodian wrapper
// is a Python process and must never be launched under MPI; MPI belongs
// on the VASP command inside the spec file.
func Command(conf config.Config, withCustodian bool) []string {
	if withCustodian {
		return []string{conf.CustodianCommand(), "run", custodian.SpecFileName}
	}
	return VaspCommand(conf)
}

// SortJobsBySubmission orders job snapshots oldest first.
func SortJobsBySubmission(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].SubmittedAt.Before(jobs[j].SubmittedAt)
	})
}
