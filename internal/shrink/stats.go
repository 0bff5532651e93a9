package shrink

import "fmt"

// BulkStats counts what a bulk run did.
type BulkStats struct {
	Checked    int
	Resized    int
	Converted  int
	Unchanged  int
	Skipped    int
	Failed     int
	BytesSaved int64
}

// Record folds one image result into the totals.
func (s *BulkStats) Record(res ImageResult) {
	switch {
	case !res.Success:
		s.Failed++
	case res.Resized:
		s.Resized++
	case res.Unchanged:
		s.Unchanged++
	}
	if res.Converted {
		s.Converted++
	}
	s.BytesSaved += res.BytesSaved
}

// Rows returns the totals as label/value pairs for display.
func (s BulkStats) Rows() [][2]string {
	return [][2]string{
		{"Checked", fmt.Sprint(s.Checked)},
		{"Resized", fmt.Sprint(s.Resized)},
		{"Converted", fmt.Sprint(s.Converted)},
		{"Unchanged", fmt.Sprint(s.Unchanged)},
		{"Skipped", fmt.Sprint(s.Skipped)},
		{"Failed", fmt.Sprint(s.Failed)},
		{"Bytes saved", fmt.Sprint(s.BytesSaved)},
	}
}
