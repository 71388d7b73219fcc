package compress

import "os"

// Result describes one compression attempt.
type Result struct {
	Success   bool   `json:"success"`
	Strategy  string `json:"strategy"`
	Path      string `json:"path,omitempty"`
	Size      int64  `json:"size"`
	InputSize int64  `json:"input_size"`
}

// Ratio returns the percentage of bytes saved, negative when the output grew.
func (r Result) Ratio() float64 {
	if !r.Success || r.InputSize <= 0 {
		return 0
	}
	return (float64(r.InputSize) - float64(r.Size)) / float64(r.InputSize) * 100
}

// Smaller reports whether a successful result is smaller than its input.
func (r Result) Smaller() bool {
	return r.Success && r.Size < r.InputSize
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
