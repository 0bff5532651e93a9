package shrink

import "testing"

func TestBulkStats_Record(t *testing.T) {
	var s BulkStats
	s.Record(ImageResult{Outcome: Outcome{Success: true}, Resized: true, BytesSaved: 100})
	s.Record(ImageResult{Outcome: Outcome{Success: true}, Converted: true, Resized: true, BytesSaved: 50})
	s.Record(ImageResult{Outcome: Outcome{Success: true, Unchanged: true}})
	s.Record(ImageResult{Outcome: Outcome{Success: false}})

	if s.Resized != 2 || s.Converted != 1 || s.Unchanged != 1 || s.Failed != 1 || s.BytesSaved != 150 {
		t.Errorf("Unexpected stats: %+v", s)
	}

	rows := s.Rows()
	if rows[1][0] != "Resized" || rows[1][1] != "2" {
		t.Errorf("Unexpected row: %v", rows[1])
	}
}
