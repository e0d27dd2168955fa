package planning

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// BenchmarkRequest configures one benchmark run.
type BenchmarkRequest struct {
	MaxTime           time.Duration
	RunCount          int
	DisplayProgress   bool
	SaveConsoleOutput bool
}

// Benchmark runs every added planner repeatedly against the context's problem
// and records per-run status and timing.
type Benchmark struct {
	pc         *PlanningContext
	planners   []Planner
	experiment string
	logger     golog.Logger
	results    *benchmarkResults
}

type benchmarkRun struct {
	Status string        `json:"status"`
	Solved bool          `json:"solved"`
	Time   time.Duration `json:"time"`
}

type plannerResults struct {
	Planner  string         `json:"planner"`
	Runs     []benchmarkRun `json:"runs"`
	MeanTime float64        `json:"mean_time_seconds"`
	StdDev   float64        `json:"stddev_time_seconds"`
	Solved   int            `json:"solved"`
}

type benchmarkResults struct {
	ID         string           `json:"id"`
	Experiment string           `json:"experiment"`
	MaxTime    time.Duration    `json:"max_time"`
	RunCount   int              `json:"run_count"`
	Planners   []plannerResults `json:"planners"`
}

func newBenchmark(pc *PlanningContext, logger golog.Logger) *Benchmark {
	return &Benchmark{pc: pc, logger: logger}
}

// ClearPlanners removes all planners from the benchmark.
func (b *Benchmark) ClearPlanners() {
	b.planners = nil
}

// AddPlanner adds a planner to benchmark.
func (b *Benchmark) AddPlanner(p Planner) {
	b.planners = append(b.planners, p)
}

// SetExperimentName names the experiment in saved results.
func (b *Benchmark) SetExperimentName(name string) {
	b.experiment = name
}

// Run executes RunCount solves per planner, each bounded by MaxTime.
func (b *Benchmark) Run(req BenchmarkRequest) bool {
	if len(b.planners) == 0 {
		b.logger.Error("no planners to benchmark")
		return false
	}
	results := &benchmarkResults{
		ID:         uuid.NewString(),
		Experiment: b.experiment,
		MaxTime:    req.MaxTime,
		RunCount:   req.RunCount,
	}
	for _, p := range b.planners {
		pr := plannerResults{Planner: p.Name()}
		times := make([]float64, 0, req.RunCount)
		for run := 0; run < req.RunCount; run++ {
			b.pc.pdef.ClearSolutionPaths()
			p.Clear()
			p.SetProblemDefinition(b.pc.pdef)
			start := b.pc.clk.Now()
			ptc := TimedTerminationCondition(req.MaxTime, b.pc.clk)
			status := p.Solve(ptc)
			elapsed := b.pc.clk.Since(start)
			times = append(times, elapsed.Seconds())
			if status.Solved() {
				pr.Solved++
			}
			pr.Runs = append(pr.Runs, benchmarkRun{Status: status.String(), Solved: status.Solved(), Time: elapsed})
			if req.DisplayProgress {
				b.logger.Infof("%s: run %d/%d finished with status %q in %v", p.Name(), run+1, req.RunCount, status, elapsed)
			}
		}
		pr.MeanTime = stat.Mean(times, nil)
		pr.StdDev = stat.StdDev(times, nil)
		results.Planners = append(results.Planners, pr)
	}
	b.results = results
	return true
}

// SaveResultsToFile writes the latest results as JSON. With no path, a default
// name derived from the experiment and run id is used.
func (b *Benchmark) SaveResultsToFile(path ...string) bool {
	if b.results == nil {
		return false
	}
	filename := ""
	if len(path) > 0 && path[0] != "" {
		filename = path[0]
	} else {
		filename = fmt.Sprintf("benchmark_%s_%s.json", b.experiment, b.results.ID)
	}
	data, err := json.MarshalIndent(b.results, "", "  ")
	if err != nil {
		b.logger.Errorw("unable to marshal benchmark results", "error", err)
		return false
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		b.logger.Errorw("unable to save benchmark results", "error", err)
		return false
	}
	return true
}

// Benchmark runs the current planner against the configured problem and saves
// results. The experiment is named <robot>_<group>_<scene>_<context>.
func (pc *PlanningContext) Benchmark(timeout time.Duration, count int, filename string) bool {
	b := newBenchmark(pc, pc.logger)
	b.ClearPlanners()
	pc.si.Setup()
	b.AddPlanner(pc.currentPlanner())
	sceneName := ""
	if pc.scene != nil {
		sceneName = pc.scene.Name()
	}
	b.SetExperimentName(fmt.Sprintf("%s_%s_%s_%s",
		pc.spec.StateSpace.Model().Name(), pc.spec.Group, sceneName, pc.name))

	if !b.Run(BenchmarkRequest{
		MaxTime:           timeout,
		RunCount:          count,
		DisplayProgress:   true,
		SaveConsoleOutput: false,
	}) {
		return false
	}
	if filename == "" {
		return b.SaveResultsToFile()
	}
	return b.SaveResultsToFile(filename)
}
