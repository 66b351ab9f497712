// Command validate performs end-to-end integrity checks across the data
// layers for a set of pollutant-year scopes: the hourly transform must obey
// the precedence rule against the raw layers, every daily AQI must equal a
// fresh derivation from the hourly rows, and the category rollup must sum
// to the daily record count. Exit status is non-zero when any check fails.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data -year 2024 -params 88101 -version current
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/pacificaqd/airquality-etl/internal/adapter/store"
	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/pipeline"
)

func main() {
	dataDir := flag.String("data-dir", "data", "root of the data layout")
	year := flag.Int("year", 0, "calendar year to validate")
	params := flag.String("params", "88101", "comma-separated AQS parameter codes")
	version := flag.String("version", "current", "breakpoint table version: legacy or current")
	flag.Parse()

	if *year == 0 {
		flag.Usage()
		os.Exit(2)
	}

	st := store.NewFileStore(*dataDir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	registry := domain.DefaultBreakpoints()

	failures := 0
	for _, param := range strings.Split(*params, ",") {
		param = strings.TrimSpace(param)
		scope := pipeline.Scope{ParameterCode: param, Year: *year}
		if err := validateScope(st, registry, scope, domain.Version(*version)); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", scope, err)
			failures++
			continue
		}
		fmt.Printf("OK   %s\n", scope)
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d scope(s) failed validation\n", failures)
		os.Exit(1)
	}
}

func validateScope(st *store.FileStore, registry *domain.BreakpointRegistry, scope pipeline.Scope, version domain.Version) error {
	table, err := registry.Effective(scope.ParameterCode, version)
	if err != nil {
		return err
	}

	primary, secondary, err := st.ExtractScope(context.Background(), scope)
	if err != nil {
		return fmt.Errorf("read raw layers: %w", err)
	}

	// The stored hourly layer must equal a fresh reconciliation of raw.
	expectedHourly := domain.Reconcile(primary, secondary)
	storedHourly, err := st.ReadHourly(scope)
	if err != nil {
		return fmt.Errorf("read hourly layer: %w", err)
	}
	if diff := cmp.Diff(expectedHourly, storedHourly, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("hourly layer does not match reconciliation of raw:\n%s", diff)
	}

	// The stored daily layer must equal a fresh derivation from hourly.
	storedDaily, err := st.ReadDaily(scope, table.Version)
	if err != nil {
		return fmt.Errorf("read daily layer: %w", err)
	}
	expectedDaily, err := domain.DeriveDailyAQI(storedHourly, table)
	if err != nil {
		return fmt.Errorf("derive daily: %w", err)
	}
	// GeneratedAt reflects the original run, not this validation.
	ignoreGeneratedAt := cmpopts.IgnoreFields(domain.DailyAQI{}, "GeneratedAt")
	if diff := cmp.Diff(expectedDaily, storedDaily, ignoreGeneratedAt, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("daily layer does not match derivation from hourly:\n%s", diff)
	}

	// The category rollup must account for every daily record of this scope.
	summaries, err := st.ReadSummary(scope.Year)
	if err != nil {
		return fmt.Errorf("read summary layer: %w", err)
	}
	summaryDays := 0
	for _, s := range summaries {
		if s.ParameterCode == scope.ParameterCode && s.Year == scope.Year {
			summaryDays += s.Days
		}
	}
	if summaryDays != len(storedDaily) {
		return fmt.Errorf("summary counts %d days, daily layer has %d records",
			summaryDays, len(storedDaily))
	}

	return nil
}
