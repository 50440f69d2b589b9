// Command nvd-fetch downloads CVE records from the NVD CVE API and
// writes them as a single deduplicated JSON document. With a Redis
// checkpoint configured, subsequent runs fetch only records modified
// since the previous run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vulnfeed/nvd-cve-client/pkg/checkpoint"
	"github.com/vulnfeed/nvd-cve-client/pkg/cveset"
	"github.com/vulnfeed/nvd-cve-client/pkg/logging"
	"github.com/vulnfeed/nvd-cve-client/pkg/nvdapi"
)

// stallRetries is how many times a non-2xx stall is retried with
// ResetLastCall before the run is declared failed.
const stallRetries = 3

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	cfg := nvdapi.DefaultConfig()
	cfg.APIKey = getEnv("NVD_API_KEY", "")
	cfg.Endpoint = getEnv("NVD_ENDPOINT", nvdapi.DefaultEndpoint)
	if v := getEnv("NVD_RESULTS_PER_PAGE", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid NVD_RESULTS_PER_PAGE")
		}
		cfg.ResultsPerPage = n
	}
	if v := getEnv("NVD_DELAY_MS", ""); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid NVD_DELAY_MS")
		}
		cfg.Delay = time.Duration(ms) * time.Millisecond
	}

	ctx := context.Background()

	// Optional Redis checkpoint for incremental sessions.
	var store *checkpoint.Store
	if redisURL := getEnv("REDIS_URL", ""); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}

		store = checkpoint.NewStore(redisClient, logging.NewLogger("checkpoint"))
		epoch, ok, err := store.Load(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load checkpoint")
		}
		if ok {
			cfg.Filters = append(cfg.Filters,
				nvdapi.LastModifiedFilter(time.Unix(epoch, 0), time.Now())...)
			logger.Info().
				Int64("last_modified", epoch).
				Msg("Resuming from checkpoint")
		}
	}

	api, err := nvdapi.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create NVD client")
	}
	defer api.Close()

	out := cveset.New()
	if err := fetchAll(ctx, api, out, logger); err != nil {
		out.MarkFailed(err.Error())
		logger.Error().Err(err).Msg("Fetch failed")
	}
	out.SetLastModified(api.LastModified())

	if out.Success() && store != nil && api.LastModified() > 0 {
		if err := store.Save(ctx, api.LastModified()); err != nil {
			logger.Error().Err(err).Msg("Failed to save checkpoint")
		}
	}

	if err := writeOutput(out, getEnv("OUTPUT", "")); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write output")
	}

	logger.Info().
		Int("cves", out.Len()).
		Bool("success", out.Success()).
		Msg("Done")

	if !out.Success() {
		os.Exit(1)
	}
}

// fetchAll drains the iterator into the set, retrying HTTP-level
// stalls a bounded number of times with backoff.
func fetchAll(ctx context.Context, api *nvdapi.Client, out *cveset.Set, logger zerolog.Logger) error {
	retries := 0
	backoff := backoffBase()

	for api.HasMore() {
		items, err := api.Next(ctx)
		if err != nil {
			return fmt.Errorf("fetch page: %w", err)
		}

		if items == nil && api.LastStatusCode() != http.StatusOK {
			if retries >= stallRetries {
				return fmt.Errorf("giving up after %d retries (last status %d)",
					retries, api.LastStatusCode())
			}
			retries++
			logger.Warn().
				Int("status", api.LastStatusCode()).
				Int("retry", retries).
				Dur("backoff", backoff).
				Msg("Iteration stalled, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			api.ResetLastCall()
			continue
		}

		out.Add(items)
	}

	return nil
}

// backoffBase returns the initial stall backoff, tunable for tests.
func backoffBase() time.Duration {
	if v := getEnv("NVD_STALL_BACKOFF_MS", ""); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return 30 * time.Second
}

// writeOutput marshals the set to the given path, or stdout when empty.
func writeOutput(out *cveset.Set, path string) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
