package migration

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/zero-models/zerogen/internal/generate"
)

// Mismatch describes one field where the two paths disagreed.
type Mismatch struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// ComparisonReport is the outcome of diffing a legacy run against a
// pipeline run for the same input.
type ComparisonReport struct {
	Equivalent  bool       `json:"equivalent"`
	LegacyRun   string     `json:"legacy_run"`
	PipelineRun string     `json:"pipeline_run"`
	Mismatches  []Mismatch `json:"mismatches,omitempty"`
}

// OutputComparator diffs the results of the two generation paths. It
// compares success flags, generated model sets, file sets with content
// hashes, and error lists. Write actions are ignored; the paths may run
// against directories in different states.
type OutputComparator struct {
	logger *zap.Logger
}

// NewOutputComparator returns a comparator. A nil logger disables logging.
func NewOutputComparator(logger *zap.Logger) *OutputComparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutputComparator{logger: logger}
}

// Compare diffs the two results field by field.
func (c *OutputComparator) Compare(legacy, pipeline *generate.Result) ComparisonReport {
	report := ComparisonReport{Equivalent: true}
	if legacy == nil || pipeline == nil {
		report.Equivalent = false
		report.Mismatches = append(report.Mismatches, Mismatch{
			Field:  "result",
			Detail: fmt.Sprintf("legacy present=%t pipeline present=%t", legacy != nil, pipeline != nil),
		})
		return report
	}
	report.LegacyRun = legacy.RunID
	report.PipelineRun = pipeline.RunID

	if legacy.Success != pipeline.Success {
		report.Mismatches = append(report.Mismatches, Mismatch{
			Field:  "success",
			Detail: fmt.Sprintf("legacy=%t pipeline=%t", legacy.Success, pipeline.Success),
		})
	}

	report.Mismatches = append(report.Mismatches, diffSets("models", modelTables(legacy), modelTables(pipeline))...)
	report.Mismatches = append(report.Mismatches, diffFiles(fileHashes(legacy), fileHashes(pipeline))...)
	report.Mismatches = append(report.Mismatches, diffSets("errors", legacy.Errors, pipeline.Errors)...)

	report.Equivalent = len(report.Mismatches) == 0
	if !report.Equivalent {
		fields := make([]string, 0, len(report.Mismatches))
		for _, m := range report.Mismatches {
			fields = append(fields, m.Field)
		}
		c.logger.Warn("generation paths diverged",
			zap.String("legacy_run", legacy.RunID),
			zap.String("pipeline_run", pipeline.RunID),
			zap.Strings("fields", fields),
		)
	}
	return report
}

func modelTables(res *generate.Result) []string {
	tables := make([]string, 0, len(res.Models))
	for _, m := range res.Models {
		tables = append(tables, m.Table)
	}
	return tables
}

// fileHashes flattens per-model and run-level file reports into one
// path-to-hash map.
func fileHashes(res *generate.Result) map[string]string {
	hashes := make(map[string]string)
	for _, m := range res.Models {
		for _, f := range m.Files {
			hashes[f.Path] = f.Hash
		}
	}
	for _, f := range res.Files {
		hashes[f.Path] = f.Hash
	}
	return hashes
}

// diffSets reports elements present on only one side, order-insensitively.
func diffSets(field string, legacy, pipeline []string) []Mismatch {
	onlyLegacy := missingFrom(legacy, pipeline)
	onlyPipeline := missingFrom(pipeline, legacy)

	var mismatches []Mismatch
	if len(onlyLegacy) > 0 {
		mismatches = append(mismatches, Mismatch{
			Field:  field,
			Detail: fmt.Sprintf("only in legacy: %s", strings.Join(onlyLegacy, ", ")),
		})
	}
	if len(onlyPipeline) > 0 {
		mismatches = append(mismatches, Mismatch{
			Field:  field,
			Detail: fmt.Sprintf("only in pipeline: %s", strings.Join(onlyPipeline, ", ")),
		})
	}
	return mismatches
}

func diffFiles(legacy, pipeline map[string]string) []Mismatch {
	var onlyLegacy, onlyPipeline, drifted []string
	for path, hash := range legacy {
		other, ok := pipeline[path]
		switch {
		case !ok:
			onlyLegacy = append(onlyLegacy, path)
		case other != hash:
			drifted = append(drifted, path)
		}
	}
	for path := range pipeline {
		if _, ok := legacy[path]; !ok {
			onlyPipeline = append(onlyPipeline, path)
		}
	}
	sort.Strings(onlyLegacy)
	sort.Strings(onlyPipeline)
	sort.Strings(drifted)

	var mismatches []Mismatch
	if len(onlyLegacy) > 0 {
		mismatches = append(mismatches, Mismatch{
			Field:  "files",
			Detail: fmt.Sprintf("only in legacy: %s", strings.Join(onlyLegacy, ", ")),
		})
	}
	if len(onlyPipeline) > 0 {
		mismatches = append(mismatches, Mismatch{
			Field:  "files",
			Detail: fmt.Sprintf("only in pipeline: %s", strings.Join(onlyPipeline, ", ")),
		})
	}
	if len(drifted) > 0 {
		mismatches = append(mismatches, Mismatch{
			Field:  "files",
			Detail: fmt.Sprintf("content differs: %s", strings.Join(drifted, ", ")),
		})
	}
	return mismatches
}

func missingFrom(from, in []string) []string {
	present := make(map[string]struct{}, len(in))
	for _, s := range in {
		present[s] = struct{}{}
	}
	var missing []string
	for _, s := range from {
		if _, ok := present[s]; !ok {
			missing = append(missing, s)
		}
	}
	sort.Strings(missing)
	return missing
}
