package envs

import (
	"math"
	"math/rand"
	"testing"
)

func TestCartPoleResetStartsNearUpright(t *testing.T) {
	env, err := NewCartPole(8, 500, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewCartPole failed: %v", err)
	}
	for i, obs := range env.Observe() {
		for j, v := range obs {
			if math.Abs(v) > 0.05 {
				t.Errorf("env %d: obs[%d] = %v outside start bounds", i, j, v)
			}
		}
	}
	for i, done := range env.Terminated() {
		if done {
			t.Errorf("env %d terminated at reset", i)
		}
	}
}

func TestCartPoleTruncatesAtStepLimit(t *testing.T) {
	const maxSteps = 5
	env, err := NewCartPole(2, maxSteps, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("NewCartPole failed: %v", err)
	}
	// Alternate pushes keep the pole near upright for a few steps.
	for step := 0; step < maxSteps; step++ {
		action := float64(step % 2)
		if _, err := env.Step([][]float64{{action}, {action}}); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	for i := range env.Truncated() {
		if env.Terminated()[i] {
			t.Errorf("env %d terminated within %d steps from a near-upright start", i, maxSteps)
		}
		if !env.Truncated()[i] {
			t.Errorf("env %d not truncated at the step limit", i)
		}
	}
}

func TestCartPoleTerminatesUnderConstantForce(t *testing.T) {
	env, err := NewCartPole(1, 100000, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("NewCartPole failed: %v", err)
	}
	for step := 0; step < 1000; step++ {
		if _, err := env.Step([][]float64{{1}}); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if env.Terminated()[0] {
			if env.Truncated()[0] {
				t.Error("terminated episode also flagged truncated")
			}
			return
		}
	}
	t.Error("constant force never toppled the pole")
}

func TestCartPoleResetSubset(t *testing.T) {
	env, err := NewCartPole(3, 100000, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("NewCartPole failed: %v", err)
	}
	for step := 0; step < 100; step++ {
		if _, err := env.Step([][]float64{{1}, {1}, {1}}); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	before := env.Observe()
	if err := env.Reset([]int{1}); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	after := env.Observe()

	for j, v := range after[1] {
		if math.Abs(v) > 0.05 {
			t.Errorf("reset env obs[%d] = %v outside start bounds", j, v)
		}
	}
	for _, e := range []int{0, 2} {
		for j := range after[e] {
			if after[e][j] != before[e][j] {
				t.Errorf("untouched env %d changed by subset reset", e)
			}
		}
	}
	if err := env.Reset([]int{5}); err == nil {
		t.Error("expected error for out-of-range reset index")
	}
}

func TestNewCartPoleValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	if _, err := NewCartPole(0, 100, rng); err == nil {
		t.Error("expected error for zero envs")
	}
	if _, err := NewCartPole(2, 0, rng); err == nil {
		t.Error("expected error for zero step limit")
	}
	env, _ := NewCartPole(2, 100, rng)
	if _, err := env.Step([][]float64{{1}}); err == nil {
		t.Error("expected error for mismatched action batch")
	}
}
