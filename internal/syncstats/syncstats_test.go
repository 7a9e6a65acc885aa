package syncstats

import "testing"

func TestSnapshotAccumulates(t *testing.T) {
	s := New()
	s.Inc(FilesOK)
	s.Inc(FilesOK)
	s.Add(BytesTransferred, 4096)
	s.Add(BytesMatchedByDelta, 1024)

	sn := s.Snapshot()
	if sn.FilesOK != 2 {
		t.Errorf("FilesOK = %d, want 2", sn.FilesOK)
	}
	if sn.BytesTransferred != 4096 {
		t.Errorf("BytesTransferred = %d, want 4096", sn.BytesTransferred)
	}
	done := sn.Done()
	if done.FilesOK != 2 || done.Bytes != 4096 {
		t.Errorf("Done() = %+v", done)
	}
}

func TestConcurrentAdds(t *testing.T) {
	s := New()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				s.Inc(FilesOK)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if got := s.Get(FilesOK); got != 8000 {
		t.Errorf("FilesOK = %d, want 8000", got)
	}
}
