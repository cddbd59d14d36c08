package lfs

import "testing"

func TestFsckCleanVolumeHasNoProblems(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Unmount(); err != nil {
		t.Fatal(err)
	}

	report, err := Fsck(path)
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateClean {
		t.Fatalf("state = %s, want CLEAN", report.State)
	}
	if len(report.Problems) != 0 {
		t.Fatalf("unexpected problems: %v", report.Problems)
	}
}

func TestFsckReportsDirtyVolume(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	// Close without Unmount: leaves state=DIRTY on disk.
	if err := v.dev.Close(); err != nil {
		t.Fatal(err)
	}

	report, err := Fsck(path)
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateDirty {
		t.Fatalf("state = %s, want DIRTY", report.State)
	}
	if len(report.Problems) == 0 {
		t.Fatal("expected fsck to flag the dirty state")
	}
}
