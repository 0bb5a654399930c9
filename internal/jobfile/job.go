// Package jobfile loads task graphs from YAML job descriptions.
//
// A job lists tasks with their predecessors. Tasks may also declare spawn
// children, which the task body submits to its own scheduler after its work
// succeeds:
//
//	name: render
//	tasks:
//	  - id: scan
//	    work: 20ms
//	    spawn:
//	      - id: tile-1
//	        kind: tile
//	  - id: composite
//	    kind: composite
//	    priority: 5
//	    after: [scan]
//	  - id: publish
//	    command: cp out.png /srv/www/
//	    after: [composite]
package jobfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gammazero/toposort"
	"gopkg.in/yaml.v3"
)

// ErrInvalidJob wraps every validation failure.
var ErrInvalidJob = errors.New("invalid job")

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML accepts "250ms" style strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: work must be a duration string: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: negative duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TaskDef describes one task in a job.
type TaskDef struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name,omitempty"`
	Priority     int       `yaml:"priority,omitempty"`
	After        []string  `yaml:"after,omitempty"`
	Work         Duration  `yaml:"work,omitempty"`
	Command      string    `yaml:"command,omitempty"`
	FailAttempts int       `yaml:"fail_attempts,omitempty"` // attempts that fail before the work succeeds
	Kind         string    `yaml:"kind,omitempty"`
	Spawn        []TaskDef `yaml:"spawn,omitempty"`
}

// DisplayName returns the name, or the ID when no name is set.
func (d TaskDef) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Job is a validated job description.
type Job struct {
	Name  string    `yaml:"name"`
	Tasks []TaskDef `yaml:"tasks"`

	order []string
	byID  map[string]TaskDef
}

// Load reads and parses the job file at path.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	job, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return job, nil
}

// Parse decodes and validates a job. Unknown fields are rejected.
func Parse(data []byte) (*Job, error) {
	var job Job

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}

	if err := job.validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Order returns the top-level task IDs so that every task follows its
// predecessors.
func (j *Job) Order() []string {
	return append([]string(nil), j.order...)
}

// Task returns the definition with the given ID, including spawn children.
func (j *Job) Task(id string) (TaskDef, bool) {
	def, ok := j.byID[id]
	return def, ok
}

// Count returns the number of tasks including spawn children.
func (j *Job) Count() int {
	return len(j.byID)
}

func (j *Job) validate() error {
	if len(j.Tasks) == 0 {
		return fmt.Errorf("%w: no tasks", ErrInvalidJob)
	}

	j.byID = make(map[string]TaskDef)
	order, err := validateLevel(j.Tasks, j.byID, "")
	if err != nil {
		return err
	}
	j.order = order
	return nil
}

// validateLevel checks one sibling list and recurses into spawn children.
// IDs are unique across the whole job; after references stay within a level.
func validateLevel(defs []TaskDef, seen map[string]TaskDef, parent string) ([]string, error) {
	level := make(map[string]bool, len(defs))
	for i, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("%w: task #%d%s has no id", ErrInvalidJob, i+1, under(parent))
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task id %q", ErrInvalidJob, def.ID)
		}
		if def.FailAttempts < 0 {
			return nil, fmt.Errorf("%w: task %q has negative fail_attempts", ErrInvalidJob, def.ID)
		}
		if def.Command != "" && def.Work > 0 {
			return nil, fmt.Errorf("%w: task %q sets both command and work", ErrInvalidJob, def.ID)
		}
		seen[def.ID] = def
		level[def.ID] = true
	}

	for _, def := range defs {
		for _, dep := range def.After {
			if !level[dep] {
				return nil, fmt.Errorf("%w: task %q depends on unknown task %q%s", ErrInvalidJob, def.ID, dep, under(parent))
			}
		}
	}

	order, err := topoOrder(defs)
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		if len(def.Spawn) == 0 {
			continue
		}
		if _, err := validateLevel(def.Spawn, seen, def.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func topoOrder(defs []TaskDef) ([]string, error) {
	var edges []toposort.Edge
	for _, def := range defs {
		if len(def.After) == 0 {
			// Edge from nil keeps tasks without predecessors in the result
			edges = append(edges, toposort.Edge{nil, def.ID})
			continue
		}
		for _, dep := range def.After {
			edges = append(edges, toposort.Edge{dep, def.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	order := make([]string, 0, len(defs))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(defs) {
		return nil, fmt.Errorf("%w: dependency cycle among %d tasks", ErrInvalidJob, len(defs)-len(order))
	}
	return order, nil
}

func under(parent string) string {
	if parent == "" {
		return ""
	}
	return fmt.Sprintf(" (spawned by %q)", parent)
}
