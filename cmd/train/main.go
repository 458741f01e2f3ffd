package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/rs/zerolog"

	"vectorized-ppo/internal/envs"
	"vectorized-ppo/internal/grad"
	"vectorized-ppo/internal/metrics"
	"vectorized-ppo/internal/model"
	"vectorized-ppo/internal/monitor"
	"vectorized-ppo/internal/optimize"
	"vectorized-ppo/internal/ppo"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	cfg := ppo.Config{
		TotalTransitions:    getenvInt("TOTAL_TRANSITIONS", 100_000),
		NumEnvs:             getenvInt("NUM_ENVS", 8),
		TrajectoryLength:    getenvInt("TRAJECTORY_LENGTH", 128),
		BatchSize:           getenvInt("BATCH_SIZE", 256),
		NumEpochs:           getenvInt("NUM_EPOCHS", 4),
		Discount:            getenvFloat("DISCOUNT", 0.99),
		GAELambda:           getenvFloat("GAE_LAMBDA", 0.95),
		ClipEpsilon:         getenvFloat("CLIP_EPSILON", 0.2),
		ClipValueLoss:       getenvBool("CLIP_VALUE_LOSS", true),
		NormalizeAdvantages: getenvBool("NORMALIZE_ADVANTAGES", true),
		EntropyCoef:         getenvFloat("ENTROPY_COEF", 0.01),
		ValueCoef:           getenvFloat("VALUE_COEF", 0.5),
		MaxGradNorm:         getenvFloat("MAX_GRAD_NORM", 0.5),
		TargetKL:            getenvFloat("TARGET_KL", 0.02),
		LearningRate:        getenvFloat("LEARNING_RATE", 3e-3),
		LRDecay:             getenvBool("LR_DECAY", true),
		Seed:                getenvInt64("SEED", time.Now().UnixNano()),
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	env, heads, obsDim, err := buildEnv(getenv("ENV", "cartpole"), cfg, rng)
	if err != nil {
		logger.Fatal().Err(err).Msg("build environment")
	}
	policy, err := model.NewLinear(obsDim, heads, rng)
	if err != nil {
		logger.Fatal().Err(err).Msg("build policy")
	}

	log := metrics.NewLog()
	driver, err := ppo.NewDriver(cfg, env, policy,
		grad.CentralDifference{}, optimize.NewAdam(cfg.LearningRate), log, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build driver")
	}

	if port := getenv("PORT", ""); port != "" {
		server := monitor.New(cfg, log, logger)
		driver.OnWindow = server.Broadcast
		go func() {
			logger.Info().Str("port", port).Msg("monitor listening")
			if err := http.ListenAndServe(":"+port, server.Handler()); err != nil {
				logger.Error().Err(err).Msg("monitor server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	runErr := driver.Run(ctx)
	elapsed := time.Since(start)

	if chartPath := getenv("CHART_PATH", ""); chartPath != "" {
		if err := metrics.WriteChart(log, chartPath); err != nil {
			logger.Error().Err(err).Msg("write chart")
		} else {
			logger.Info().Str("path", chartPath).Msg("chart written")
		}
	}

	switch {
	case runErr == nil:
		printSummary(driver, log, elapsed)
	case errors.Is(runErr, context.Canceled):
		logger.Warn().Msg("interrupted")
		printSummary(driver, log, elapsed)
	default:
		logger.Fatal().Err(runErr).Msg("training failed")
	}
}

func buildEnv(name string, cfg ppo.Config, rng *rand.Rand) (ppo.Env, []model.HeadSpec, int, error) {
	switch name {
	case "cartpole":
		env, err := envs.NewCartPole(cfg.NumEnvs, getenvInt("MAX_EPISODE_STEPS", 500), rng)
		if err != nil {
			return nil, nil, 0, err
		}
		return env, []model.HeadSpec{{Kind: model.Discrete, NumActions: 2}}, env.ObsDim(), nil
	case "chain":
		env, err := envs.NewChain(cfg.NumEnvs, getenvInt("CHAIN_LENGTH", 8),
			getenvInt("MAX_EPISODE_STEPS", 64), rng)
		if err != nil {
			return nil, nil, 0, err
		}
		return env, []model.HeadSpec{{Kind: model.Discrete, NumActions: env.NumActions()}}, env.ObsDim(), nil
	default:
		return nil, nil, 0, fmt.Errorf("unknown environment %q", name)
	}
}

func printSummary(driver *ppo.Driver, log *metrics.Log, elapsed time.Duration) {
	fmt.Println(aurora.Bold("training summary"))
	fmt.Printf("  run:         %s\n", aurora.Cyan(driver.RunID()))
	fmt.Printf("  transitions: %s\n", aurora.Green(strconv.Itoa(driver.Collected())))
	fmt.Printf("  elapsed:     %s\n", aurora.Green(elapsed.Round(time.Millisecond).String()))
	if point, ok := log.Last("episode_return"); ok {
		fmt.Printf("  last return: %s\n", aurora.Yellow(fmt.Sprintf("%.2f", point.Value)))
	}
	if point, ok := log.Last("kl_estimate"); ok {
		fmt.Printf("  last kl:     %s\n", aurora.Yellow(fmt.Sprintf("%.5f", point.Value)))
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
