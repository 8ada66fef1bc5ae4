package compiler

// Kind tags a fatal error raised inside the planner so GenerateProgram's
// boundary can report it uniformly.
type Kind string

const (
	ShapeLookupMissing          Kind = "ShapeLookupMissing"
	UnsupportedContractionArity Kind = "UnsupportedContractionArity"
	InvalidReshape              Kind = "InvalidReshape"
	ReshapeNonTensor            Kind = "ReshapeNonTensor"
	PrngMisuse                  Kind = "PrngMisuse"
)

