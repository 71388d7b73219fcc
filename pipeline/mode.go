package pipeline

import (
	"fmt"
	"strings"
)

// Mode is the action applied to every input file.
type Mode int

const (
	ModeCompressAndSplit Mode = iota
	ModeCompressOnly
	ModeSplitOnly
)

// ParseMode accepts the short names ("split", "compress", "compress+split")
// as well as the labels returned by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.Join(strings.Fields(s), "")) {
	case "", "compress+split", "compress-split", "compressandsplit", "both":
		return ModeCompressAndSplit, nil
	case "compress", "compressonly", "compress-only":
		return ModeCompressOnly, nil
	case "split", "splitonly", "split-only":
		return ModeSplitOnly, nil
	}
	return ModeCompressAndSplit, fmt.Errorf("unknown mode %q (supported: split, compress, compress+split)", s)
}

func (m Mode) String() string {
	switch m {
	case ModeCompressOnly:
		return "Compress Only"
	case ModeSplitOnly:
		return "Split Only"
	default:
		return "Compress + Split"
	}
}

// Compresses reports whether the mode runs the compressor.
func (m Mode) Compresses() bool {
	return m != ModeSplitOnly
}

// Splits reports whether the mode runs the splitter.
func (m Mode) Splits() bool {
	return m != ModeCompressOnly
}

// Status is the terminal state of one input file.
type Status string

const (
	StatusSaved Status = "Done (Saved)"
	StatusSplit Status = "Done (Split)"
	StatusError Status = "Error"
)

// Progress messages passed to a StatusFunc before the terminal status.
const (
	ProgressProcessing  = "Processing..."
	ProgressCompressing = "Compressing (%s)..."
	ProgressSplitting   = "Splitting..."
)
