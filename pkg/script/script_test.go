package script

import (
	"strings"
	"testing"
)

func TestRenderScenario(t *testing.T) {
	t.Parallel()
	s := New("")
	s.Set("job_name", "test")
	s.Set("partition", "gpu")
	s.Set("mem", "4G")
	s.AddCommand("sleep 10")
	s.AddCommand("echo HI")

	want := "#!/bin/bash\n#SBATCH --job-name=test\n#SBATCH --partition=gpu\n#SBATCH --mem=4G\nsleep 10\necho HI"
	if got := s.Render(); got != want {
		t.Fatalf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderDeterministic(t *testing.T) {
	t.Parallel()
	build := func() *Script {
		s := New("/bin/sh")
		s.Set("job_name", "a")
		s.Set("time", "0-00:01:00")
		s.AddCommand("true")
		return s
	}
	if a, b := build().Render(), build().Render(); a != b {
		t.Fatalf("identical builds rendered differently:\n%q\n%q", a, b)
	}
}

func TestOverwriteKeepsPosition(t *testing.T) {
	t.Parallel()
	s := New("")
	s.Set("partition", "gpu")
	s.Set("time", "1:00")
	s.Set("partition", "cpu")

	out := s.Render()
	pi := strings.Index(out, "--partition=cpu")
	ti := strings.Index(out, "--time=1:00")
	if pi < 0 || ti < 0 {
		t.Fatalf("missing directives in:\n%s", out)
	}
	if pi > ti {
		t.Fatalf("overwrite moved partition after time:\n%s", out)
	}
	if strings.Contains(out, "--partition=gpu") {
		t.Fatalf("stale value survived overwrite:\n%s", out)
	}
}

func TestHyphenationDoesNotTouchStoredState(t *testing.T) {
	t.Parallel()
	s := New("")
	s.Set("job_name", "x")
	_ = s.Render()

	if _, ok := s.Get("job_name"); !ok {
		t.Fatal("accessor-form name lost after render")
	}
	if _, ok := s.Get("job-name"); ok {
		t.Fatal("render leaked hyphenated name into the store")
	}
	ds := s.Directives()
	if len(ds) != 1 || ds[0].Name != "job_name" {
		t.Fatalf("unexpected directives: %+v", ds)
	}
}

func TestIsArrayJob(t *testing.T) {
	t.Parallel()
	s := New("")
	s.Set("partition", "gpu")
	if s.IsArrayJob() {
		t.Fatal("no array directive but IsArrayJob() = true")
	}
	s.Set("array", "0-3")
	if !s.IsArrayJob() {
		t.Fatal("array directive set but IsArrayJob() = false")
	}
}

func TestRenderShellOverride(t *testing.T) {
	t.Parallel()
	s := New("/bin/bash")
	s.Set("job_name", "x")

	if got := s.RenderShell("/bin/zsh"); !strings.HasPrefix(got, "#!/bin/zsh\n") {
		t.Fatalf("override ignored: %q", got)
	}
	// Override must not stick.
	if got := s.Render(); !strings.HasPrefix(got, "#!/bin/bash\n") {
		t.Fatalf("override mutated stored shell: %q", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	s := New("/bin/sh")
	s.Set("job_name", "snap")
	s.Set("array", "0-2")
	s.AddCommand("echo hi")

	got := FromSnapshot(s.Snapshot())
	if got.Render() != s.Render() {
		t.Fatalf("snapshot round trip changed render:\n%q\n%q", got.Render(), s.Render())
	}
}
