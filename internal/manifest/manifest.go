// Package manifest loads and topologically orders tequio task declarations
// from a sectioned key/value file.
package manifest

import (
	"strings"

	"gopkg.in/ini.v1"

	"github.com/tacoss/tequio/internal/tqerr"
)

// TaskSpec is one immutable task declaration parsed from the manifest.
type TaskSpec struct {
	Name       string
	Command    string
	WorkDir    string
	DependsOn  []string
	ReadyCheck string
}

// Load parses path and returns task declarations in file order, before
// topological sorting. Sections with no name, or with no command key, are
// dropped silently.
func Load(path string) ([]TaskSpec, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, tqerr.ManifestUnreadable(path, err)
	}

	var specs []TaskSpec
	for _, section := range cfg.Sections() {
		name := strings.TrimSpace(section.Name())
		if name == "" || name == ini.DefaultSection {
			continue
		}

		command := section.Key("command").String()
		if strings.TrimSpace(command) == "" {
			continue
		}

		spec := TaskSpec{
			Name:       name,
			Command:    command,
			WorkDir:    strings.TrimSpace(section.Key("work_dir").String()),
			ReadyCheck: strings.TrimSpace(section.Key("ready_check").String()),
		}

		if raw := section.Key("depends_on").String(); strings.TrimSpace(raw) != "" {
			for _, dep := range strings.Split(raw, ",") {
				dep = strings.TrimSpace(dep)
				if dep != "" {
					spec.DependsOn = append(spec.DependsOn, dep)
				}
			}
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

// Order returns declarations in dependency-respecting order using Kahn's
// algorithm: at every step, among the tasks whose dependencies have all
// been emitted, the one declared earliest in the file goes next.
func Order(specs []TaskSpec) ([]TaskSpec, error) {
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		index[s.Name] = i
	}

	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, tqerr.UnknownDependency(s.Name, dep)
			}
		}
	}

	inDegree := make([]int, len(specs))
	dependents := make([][]int, len(specs))
	for i, s := range specs {
		for _, dep := range s.DependsOn {
			di := index[dep]
			dependents[di] = append(dependents[di], i)
			inDegree[i]++
		}
	}

	var queue []int
	for i := range specs {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	ordered := make([]TaskSpec, 0, len(specs))
	for len(queue) > 0 {
		// Ties resolve by original declaration index, whenever each task
		// became ready.
		pos := 0
		for i := 1; i < len(queue); i++ {
			if queue[i] < queue[pos] {
				pos = i
			}
		}
		idx := queue[pos]
		queue = append(queue[:pos], queue[pos+1:]...)

		ordered = append(ordered, specs[idx])

		for _, dependent := range dependents[idx] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(ordered) != len(specs) {
		var remaining []string
		seen := make(map[string]bool, len(ordered))
		for _, s := range ordered {
			seen[s.Name] = true
		}
		for _, s := range specs {
			if !seen[s.Name] {
				remaining = append(remaining, s.Name)
			}
		}
		return nil, tqerr.DependencyCycle(remaining)
	}

	return ordered, nil
}

// LoadOrdered loads path and returns its tasks in dependency-respecting
// order, or a ManifestEmpty error if the manifest declares no tasks.
func LoadOrdered(path string) ([]TaskSpec, error) {
	specs, err := Load(path)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, tqerr.ManifestEmpty(path)
	}
	return Order(specs)
}
