package ppo

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
)

func TestCollectFillsEveryTransition(t *testing.T) {
	env := newScriptEnv(2)
	policy := newStubPolicy(0, 0.75)
	buf, err := NewBuffer(2, 4, 8)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	c := NewCollector(rand.New(rand.NewSource(1)), zerolog.Nop())

	if _, err := c.Collect(env, policy, buf); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	for tt := 0; tt < 4; tt++ {
		for e := 0; e < 2; e++ {
			idx := buf.Index(e, tt)
			// Observation recorded before stepping: global step == t.
			if buf.Obs[idx][0] != float64(e) || buf.Obs[idx][1] != float64(tt) {
				t.Errorf("obs at (env=%d, t=%d) = %v, want [%d %d]", e, tt, buf.Obs[idx], e, tt)
			}
			if buf.Rewards[idx] != float64(e+1) {
				t.Errorf("reward at (env=%d, t=%d) = %v, want %d", e, tt, buf.Rewards[idx], e+1)
			}
			if buf.Values[idx] != 0.75 || buf.NextValues[idx] != 0.75 {
				t.Errorf("values at (env=%d, t=%d) = (%v, %v)", e, tt, buf.Values[idx], buf.NextValues[idx])
			}
		}
	}
}

func TestCollectRecordsBoundariesAndResetsOnlyFinishedEnvs(t *testing.T) {
	env := newScriptEnv(3)
	env.termAt[[2]int{0, 2}] = true  // env 0 terminates on the 2nd step
	env.truncAt[[2]int{2, 3}] = true // env 2 truncates on the 3rd step
	policy := newStubPolicy(0, 0)
	buf, err := NewBuffer(3, 4, 12)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	c := NewCollector(rand.New(rand.NewSource(1)), zerolog.Nop())

	stats, err := c.Collect(env, policy, buf)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if !buf.Terminated[buf.Index(0, 1)] {
		t.Error("termination flag not recorded for env 0 at t=1")
	}
	if !buf.Truncated[buf.Index(2, 2)] {
		t.Error("truncation flag not recorded for env 2 at t=2")
	}
	if buf.Terminated[buf.Index(1, 1)] || buf.Truncated[buf.Index(1, 2)] {
		t.Error("boundary flags leaked into env 1")
	}

	if len(env.resetLog) != 2 {
		t.Fatalf("got %d reset calls, want 2: %v", len(env.resetLog), env.resetLog)
	}
	if len(env.resetLog[0]) != 1 || env.resetLog[0][0] != 0 {
		t.Errorf("first reset = %v, want [0]", env.resetLog[0])
	}
	if len(env.resetLog[1]) != 1 || env.resetLog[1][0] != 2 {
		t.Errorf("second reset = %v, want [2]", env.resetLog[1])
	}

	if stats.Episodes != 2 {
		t.Errorf("episodes = %d, want 2", stats.Episodes)
	}
	// Env 0 ran 2 steps of reward 1, env 2 ran 3 steps of reward 3.
	if want := (2.0 + 9.0) / 2; stats.MeanReturn != want {
		t.Errorf("mean return = %v, want %v", stats.MeanReturn, want)
	}
	if want := 2.5; stats.MeanLength != want {
		t.Errorf("mean length = %v, want %v", stats.MeanLength, want)
	}
}

func TestCollectQueriesPolicyOncePerStepPlusResets(t *testing.T) {
	env := newScriptEnv(2)
	env.termAt[[2]int{1, 3}] = true
	policy := newStubPolicy(0, 0)
	buf, err := NewBuffer(2, 5, 10)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	c := NewCollector(rand.New(rand.NewSource(1)), zerolog.Nop())

	if _, err := c.Collect(env, policy, buf); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	// One full-batch query up front, one per step, and one subset query
	// for the single reset.
	wantCalls := []int{2, 2, 2, 2, 1, 2, 2}
	if len(policy.actCalls) != len(wantCalls) {
		t.Fatalf("act calls = %v, want %v", policy.actCalls, wantCalls)
	}
	for i, n := range wantCalls {
		if policy.actCalls[i] != n {
			t.Fatalf("act calls = %v, want %v", policy.actCalls, wantCalls)
		}
	}
}

func TestCollectStoresActionMasks(t *testing.T) {
	env := newScriptEnv(2)
	env.masked = true
	policy := newStubPolicy(0, 0)
	buf, err := NewBuffer(2, 4, 8)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	c := NewCollector(rand.New(rand.NewSource(1)), zerolog.Nop())

	if _, err := c.Collect(env, policy, buf); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	for tt := 0; tt < 4; tt++ {
		for e := 0; e < 2; e++ {
			idx := buf.Index(e, tt)
			mask := buf.Masks[idx]
			if mask == nil {
				t.Fatalf("no mask stored at (env=%d, t=%d)", e, tt)
			}
			// The stored mask must be the one observed at step t: action
			// 1 valid only on odd steps.
			if got, want := mask[0][1], tt%2 == 1; got != want {
				t.Errorf("mask at (env=%d, t=%d) = %v, want %v", e, tt, got, want)
			}
		}
	}
}

func TestCollectCarriesEpisodesAcrossWindows(t *testing.T) {
	env := newScriptEnv(1)
	env.termAt[[2]int{0, 6}] = true
	policy := newStubPolicy(0, 0)
	buf, err := NewBuffer(1, 4, 4)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	c := NewCollector(rand.New(rand.NewSource(1)), zerolog.Nop())

	first, err := c.Collect(env, policy, buf)
	if err != nil {
		t.Fatalf("first Collect failed: %v", err)
	}
	if first.Episodes != 0 {
		t.Errorf("first window episodes = %d, want 0", first.Episodes)
	}

	second, err := c.Collect(env, policy, buf)
	if err != nil {
		t.Fatalf("second Collect failed: %v", err)
	}
	if second.Episodes != 1 {
		t.Fatalf("second window episodes = %d, want 1", second.Episodes)
	}
	// The episode spanned both windows: 6 steps of reward 1.
	if second.MeanReturn != 6 || second.MeanLength != 6 {
		t.Errorf("episode stats = (%v, %v), want (6, 6)", second.MeanReturn, second.MeanLength)
	}
}

func TestCollectRejectsMismatchedEnvCount(t *testing.T) {
	env := newScriptEnv(3)
	policy := newStubPolicy(0, 0)
	buf, err := NewBuffer(2, 4, 8)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	c := NewCollector(rand.New(rand.NewSource(1)), zerolog.Nop())
	if _, err := c.Collect(env, policy, buf); err == nil {
		t.Error("expected error for env count mismatch")
	}
}
