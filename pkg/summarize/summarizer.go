// Package summarize turns a set of simulation metadata records into a short
// natural-language comparison using an external summarization model.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNoRecords is returned when there is nothing to summarize.
var ErrNoRecords = errors.New("no simulation records to summarize")

const (
	comparePrompt = "Compare the following E3SM simulation metadata. " +
		"Summarize key similarities and differences in tag, campaign, compset, " +
		"resolution, machine, and notes."

	synthesisPrompt = "Given these summaries of E3SM simulation metadata groups, " +
		"synthesize overall trends, differences, and recurring patterns in tag, " +
		"campaign, compset, resolution, machine, and notes."
)

// Length bounds the generated summary, in model tokens.
type Length struct {
	Max int
	Min int
}

var (
	// FinalLength is used for single-pass and synthesis summaries.
	FinalLength = Length{Max: 300, Min: 100}

	// BatchLength is used for the per-batch summaries of large inputs.
	BatchLength = Length{Max: 250, Min: 80}
)

// Backend is a text-to-text summarization model.
type Backend interface {
	Summarize(ctx context.Context, text string, length Length) (string, error)
}

// Record is the simulation metadata fed to the model. Empty fields are
// rendered as "n/a".
type Record struct {
	ID             string
	Name           string
	VersionTag     string
	CampaignID     string
	Compset        string
	GridResolution string
	Machine        string
	Notes          string
}

// Options tune batching.
type Options struct {
	// SinglePassLimit is the largest record count summarized in one call.
	SinglePassLimit int
	// BatchSize is the number of records per batch above that limit.
	BatchSize int
	// Concurrency bounds the batch calls in flight.
	Concurrency int
}

// DefaultOptions returns the standard batching parameters.
func DefaultOptions() Options {
	return Options{SinglePassLimit: 5, BatchSize: 4, Concurrency: 1}
}

// Summarizer batches records, builds prompts and calls the backend.
type Summarizer struct {
	log     logrus.FieldLogger
	backend Backend
	opts    Options
}

// New creates a Summarizer. Non-positive options fall back to defaults.
func New(log logrus.FieldLogger, backend Backend, opts Options) *Summarizer {
	def := DefaultOptions()

	if opts.SinglePassLimit < 1 {
		opts.SinglePassLimit = def.SinglePassLimit
	}

	if opts.BatchSize < 1 {
		opts.BatchSize = def.BatchSize
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = def.Concurrency
	}

	return &Summarizer{
		log:     log.WithField("component", "summarizer"),
		backend: backend,
		opts:    opts,
	}
}

// Summarize returns one summary for all records. Small inputs take a
// single backend call; larger ones are summarized batch by batch and the
// batch summaries are then synthesized in a final call.
func (s *Summarizer) Summarize(ctx context.Context, records []Record) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}

	descriptions := make([]string, 0, len(records))
	for _, r := range records {
		descriptions = append(descriptions, Describe(r))
	}

	if len(descriptions) <= s.opts.SinglePassLimit {
		s.log.WithField("records", len(records)).Debug("Summarizing in a single pass")

		summary, err := s.backend.Summarize(
			ctx, buildPrompt(comparePrompt, descriptions, "Summary:"), FinalLength,
		)
		if err != nil {
			return "", fmt.Errorf("summarizing: %w", err)
		}

		return summary, nil
	}

	batches := chunk(descriptions, s.opts.BatchSize)
	intermediate := make([]string, len(batches))

	s.log.WithFields(logrus.Fields{
		"records": len(records),
		"batches": len(batches),
	}).Debug("Summarizing in batches")

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			summary, err := s.backend.Summarize(
				gCtx, buildPrompt(comparePrompt, batch, "Summary:"), BatchLength,
			)
			if err != nil {
				return fmt.Errorf("summarizing batch %d: %w", i+1, err)
			}

			intermediate[i] = summary

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	summary, err := s.backend.Summarize(
		ctx, buildPrompt(synthesisPrompt, intermediate, "Overall Summary:"), FinalLength,
	)
	if err != nil {
		return "", fmt.Errorf("synthesizing batch summaries: %w", err)
	}

	return summary, nil
}

// Describe renders a record as one line of prompt text.
func Describe(r Record) string {
	return fmt.Sprintf(
		"%s [%s]: Tag: %s, Campaign: %s, Compset: %s, Resolution: %s, Machine: %s, Notes: %s",
		r.Name, orNA(r.ID), orNA(r.VersionTag), orNA(r.CampaignID), orNA(r.Compset),
		orNA(r.GridResolution), orNA(r.Machine), orNA(r.Notes),
	)
}

func buildPrompt(instruction string, lines []string, trailer string) string {
	return instruction + "\n\n" + strings.Join(lines, "\n") + "\n\n" + trailer
}

func chunk(items []string, size int) [][]string {
	out := make([][]string, 0, (len(items)+size-1)/size)

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}

	return out
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "n/a"
	}

	return s
}
