// Package command is the boundary to the command-language serializer that
// turns structured job parameters into the engine's text command format.
// The serializer itself lives outside this module; jobs consume it through
// the Serializer interface. Raw-mode commands are plain engine command text
// and are pre-parsed here directly.
package command

import "encoding/json"

// Structured is an opaque structured-commands payload. Its schema belongs to
// the external serializer; this module only stores and forwards it.
type Structured = json.RawMessage

// Stages is the stage span declared by a commands payload.
type Stages struct {
	First int
	Last  int
}

// Serializer renders structured commands into the engine's text format and
// answers the few schema questions the job core needs.
type Serializer interface {
	// Stages extracts the stage span from a structured payload.
	Stages(commands Structured) (Stages, error)
	// Write renders the payload for the given stage into the command file
	// at path.
	Write(path string, commands Structured, stage int) error
	// DensityMapFileName returns the density map file referenced by the
	// payload, if its command kind supports one.
	DensityMapFileName(commands Structured) (string, bool)
}

// Mode tags how a job received its commands.
type Mode string

const (
	ModeNone       Mode = "none"
	ModeStructured Mode = "structured"
	ModeRaw        Mode = "raw"
)
