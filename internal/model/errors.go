package model

import "errors"

// Error taxonomy. Stages wrap these with context; the orchestrator keys
// degradation behavior off errors.Is checks against the sentinels.
var (
	// ErrInput marks unsupported, unparseable or oversize input. Jobs fail
	// immediately with no retry.
	ErrInput = errors.New("input error")

	// ErrTransientDependency marks LM or embedding unavailability. Calls are
	// retried once; persistent failure degrades the stage.
	ErrTransientDependency = errors.New("transient dependency error")

	// ErrOntology marks an unknown IRI or unexpected ontology schema. The
	// offending annotation is rejected, never silently dropped.
	ErrOntology = errors.New("ontology error")

	// ErrSchema marks malformed structured output from the language model.
	ErrSchema = errors.New("schema error")
)
