package router

import "nudge/internal/flagfile"

// Outcome classifies what happened to one request file.
type Outcome string

const (
	// OutcomeDispatched means the collaborator accepted the request.
	OutcomeDispatched Outcome = "dispatched"
	// OutcomeParseError means the payload was not a JSON object.
	OutcomeParseError Outcome = "parse_error"
	// OutcomeInvalid means a required field was missing or malformed.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeStale means the request predates the current run.
	OutcomeStale Outcome = "stale"
	// OutcomeDispatchError means the collaborator failed or panicked.
	OutcomeDispatchError Outcome = "dispatch_error"
	// OutcomeVanished means another actor removed the file first.
	OutcomeVanished Outcome = "vanished"
)

// Result reports the handling of one request file.
type Result struct {
	Kind     flagfile.Kind
	Key      string
	Path     string
	Outcome  Outcome
	Response string
	Err      error
	// Removed is false when the file was already gone or could not be deleted.
	Removed bool
}

// Summary counts results by outcome.
type Summary map[Outcome]int

// Summarize tallies results.
func Summarize(results []Result) Summary {
	summary := make(Summary)
	for _, res := range results {
		summary[res.Outcome]++
	}
	return summary
}
