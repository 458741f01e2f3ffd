package ppo

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vectorized-ppo/internal/metrics"
)

// Driver orchestrates one training run: collect a window, estimate
// advantages, run shuffled minibatch epochs with early stopping, decay
// the learning rate, emit metrics, until the transition budget is spent.
//
// The driver exclusively owns the buffer; advantage estimation and the
// update step only ever see it read-only. Everything runs on a single
// logical thread.
type Driver struct {
	cfg       Config
	env       Env
	policy    Policy
	opt       Optimizer
	updater   *Updater
	collector *Collector
	buf       *Buffer
	metrics   *metrics.Log
	rng       *rand.Rand
	logger    zerolog.Logger
	runID     string

	collected int

	// OnWindow, when set, is invoked after every collection window with
	// the cumulative transition count and that window's diagnostics.
	OnWindow func(step int, diagnostics map[string]float64)
}

// NewDriver validates the configuration and wires the run. The policy's
// head count is checked against any per-head entropy coefficients here,
// before any environment interaction.
func NewDriver(cfg Config, env Env, policy Policy, engine GradientEngine, opt Optimizer,
	log *metrics.Log, logger zerolog.Logger) (*Driver, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if env.NumEnvs() != cfg.NumEnvs {
		return nil, fmt.Errorf("config names %d envs but environment has %d", cfg.NumEnvs, env.NumEnvs())
	}
	if len(cfg.EntropyCoefs) > 0 && len(cfg.EntropyCoefs) != policy.Heads() {
		return nil, fmt.Errorf("%d entropy coefficients for a %d-head policy", len(cfg.EntropyCoefs), policy.Heads())
	}
	buf, err := NewBuffer(cfg.NumEnvs, cfg.TrajectoryLength, cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	logger = logger.With().Str("run_id", runID).Logger()
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &Driver{
		cfg:       cfg,
		env:       env,
		policy:    policy,
		opt:       opt,
		updater:   NewUpdater(cfg, engine, opt, logger),
		collector: NewCollector(rng, logger),
		buf:       buf,
		metrics:   log,
		rng:       rng,
		logger:    logger.With().Str("component", "driver").Logger(),
		runID:     runID,
	}, nil
}

// RunID identifies this training run in logs and metrics output.
func (d *Driver) RunID() string { return d.runID }

// Collected is the number of transitions gathered so far.
func (d *Driver) Collected() int { return d.collected }

// Run executes the training loop until the transition budget is
// exhausted or ctx is cancelled. Cancellation is checked between
// windows; a window in flight always completes.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.env.Reset(nil); err != nil {
		return fmt.Errorf("initial reset: %w", err)
	}
	d.opt.SetLearningRate(d.cfg.LearningRate)
	d.logger.Info().
		Int("budget", d.cfg.TotalTransitions).
		Int("window", d.cfg.WindowSize()).
		Int("minibatches", d.cfg.NumMinibatches()).
		Msg("training started")

	for d.collected < d.cfg.TotalTransitions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.cfg.LRDecay {
			frac := 1 - float64(d.collected)/float64(d.cfg.TotalTransitions)
			d.opt.SetLearningRate(d.cfg.LearningRate * frac)
		}

		stats, err := d.collector.Collect(d.env, d.policy, d.buf)
		if err != nil {
			return fmt.Errorf("collect: %w", err)
		}
		advantages, targets := EstimateAdvantages(d.buf, d.cfg.Discount, d.cfg.GAELambda)
		d.collected += d.buf.Len()

		lastEpoch, epochs, stopped := d.runEpochs(advantages, targets)
		d.record(stats, lastEpoch, epochs, stopped)
	}

	d.logger.Info().Int("collected", d.collected).Msg("training finished")
	return nil
}

// runEpochs runs up to NumEpochs shuffled passes over the window. An
// early-stop signal abandons the remaining minibatches of the epoch and
// skips every subsequent epoch of this window.
func (d *Driver) runEpochs(advantages, targets []float64) (last []StepResult, epochs int, stopped bool) {
	for epoch := 0; epoch < d.cfg.NumEpochs && !stopped; epoch++ {
		var results []StepResult
		for _, indices := range Minibatches(d.rng, d.buf.Len(), d.cfg.BatchSize) {
			mb := NewMinibatch(d.buf, advantages, targets, indices)
			res := d.updater.Step(d.policy, mb)
			results = append(results, res)
			if res.EarlyStop {
				stopped = true
				break
			}
		}
		last = results
		epochs++
	}
	return last, epochs, stopped
}

// record appends the window's diagnostics, keyed by the cumulative
// transition count, from the last completed epoch (or the epoch that
// triggered early stop).
func (d *Driver) record(stats CollectStats, epoch []StepResult, epochs int, stopped bool) {
	diag := map[string]float64{
		"policy_loss":   meanOf(epoch, func(r StepResult) float64 { return r.PolicyLoss }),
		"value_loss":    meanOf(epoch, func(r StepResult) float64 { return r.ValueLoss }),
		"entropy":       meanOf(epoch, func(r StepResult) float64 { return r.EntropyBonus }),
		"kl_estimate":   meanOf(epoch, func(r StepResult) float64 { return r.KL }),
		"clip_fraction": meanOf(epoch, func(r StepResult) float64 { return r.ClipFraction }),
		"grad_norm":     meanOf(epoch, func(r StepResult) float64 { return r.GradNorm }),
		"learning_rate": d.opt.LearningRate(),
		"epochs":        float64(epochs),
	}
	if stats.Episodes > 0 {
		diag["episode_return"] = stats.MeanReturn
		diag["episode_length"] = stats.MeanLength
	}
	for name, value := range diag {
		d.metrics.Append(name, d.collected, value)
	}

	event := d.logger.Info().
		Int("transitions", d.collected).
		Int("epochs", epochs).
		Bool("early_stop", stopped).
		Float64("policy_loss", diag["policy_loss"]).
		Float64("value_loss", diag["value_loss"]).
		Float64("kl", diag["kl_estimate"])
	if stats.Episodes > 0 {
		event = event.Float64("episode_return", stats.MeanReturn)
	}
	event.Msg("window complete")

	if d.OnWindow != nil {
		d.OnWindow(d.collected, diag)
	}
}

func meanOf(results []StepResult, field func(StepResult) float64) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += field(r)
	}
	return sum / float64(len(results))
}
