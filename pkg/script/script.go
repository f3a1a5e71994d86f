// Package script builds SLURM submission scripts.
//
// A Script accumulates SBATCH directives (ordered, unique by name) and shell
// commands, and renders them into submission-script text. Directive names are
// stored in their accessor form (underscores, e.g. "job_name") and hyphenated
// only when rendered ("--job-name=...").
package script

import "strings"

// DefaultShell is the interpreter line used when none is configured.
const DefaultShell = "/bin/bash"

// Directive is a single scheduler instruction, e.g. {Name: "partition", Value: "gpu"}.
type Directive struct {
	Name  string
	Value string
}

// Script holds a shell interpreter, an ordered directive set, and an
// append-only command list. The zero value is not usable; use New.
//
// Script is not safe for concurrent mutation; callers sharing one across
// goroutines must serialize writes themselves.
type Script struct {
	shell    string
	names    []string // insertion order
	values   map[string]string
	commands []string
}

func New(shell string) *Script {
	if strings.TrimSpace(shell) == "" {
		shell = DefaultShell
	}
	return &Script{
		shell:  shell,
		values: make(map[string]string),
	}
}

func (s *Script) Shell() string { return s.shell }

// Set inserts or overwrites the directive under name. Overwriting an existing
// name keeps its original position in the rendered output.
func (s *Script) Set(name, value string) {
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = value
}

func (s *Script) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Directives returns the directive set in insertion order.
func (s *Script) Directives() []Directive {
	out := make([]Directive, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, Directive{Name: n, Value: s.values[n]})
	}
	return out
}

// AddCommand appends cmd verbatim; no escaping or validation is performed.
func (s *Script) AddCommand(cmd string) {
	s.commands = append(s.commands, cmd)
}

func (s *Script) Commands() []string {
	return append([]string(nil), s.commands...)
}

// IsArrayJob reports whether an "array" directive is present.
func (s *Script) IsArrayJob() bool {
	_, ok := s.values["array"]
	return ok
}

// Render returns the submission-script text: the interpreter line, one
// "#SBATCH --<name>=<value>" line per directive in insertion order, then the
// commands verbatim. Identical build sequences render byte-identical text.
func (s *Script) Render() string {
	return s.RenderShell(s.shell)
}

// RenderShell renders with an explicit interpreter, leaving the stored shell
// untouched. Used for per-submission shell overrides.
func (s *Script) RenderShell(shell string) string {
	if strings.TrimSpace(shell) == "" {
		shell = s.shell
	}
	var b strings.Builder
	b.WriteString("#!")
	b.WriteString(shell)
	for _, n := range s.names {
		b.WriteString("\n#SBATCH --")
		b.WriteString(strings.ReplaceAll(n, "_", "-"))
		b.WriteString("=")
		b.WriteString(s.values[n])
	}
	for _, cmd := range s.commands {
		b.WriteString("\n")
		b.WriteString(cmd)
	}
	return b.String()
}

// Snapshot is a gob/yaml-friendly copy of a Script's full state, used for
// configuration persistence alongside submitted scripts.
type Snapshot struct {
	Shell      string
	Directives []Directive
	Commands   []string
}

func (s *Script) Snapshot() Snapshot {
	return Snapshot{
		Shell:      s.shell,
		Directives: s.Directives(),
		Commands:   s.Commands(),
	}
}

// FromSnapshot rebuilds a Script from a persisted snapshot.
func FromSnapshot(snap Snapshot) *Script {
	sc := New(snap.Shell)
	for _, d := range snap.Directives {
		sc.Set(d.Name, d.Value)
	}
	for _, cmd := range snap.Commands {
		sc.AddCommand(cmd)
	}
	return sc
}
