package actor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

// yamlSubjectFile is the top-level YAML structure for subject content files.
// A file holds either one subject under "subject" or several under "subjects".
type yamlSubjectFile struct {
	Subject  *Subject   `yaml:"subject"`
	Subjects []*Subject `yaml:"subjects"`
}

// LoadSubjectsFromFile reads and validates one subject content file.
//
// Precondition: path must point to a YAML subject file.
// Postcondition: Returns validated subjects or a non-nil error.
func LoadSubjectsFromFile(path string, schemas stats.Schemas) ([]*Subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subject file %s: %w", path, err)
	}
	return LoadSubjectsFromBytes(data, schemas)
}

// LoadSubjectsFromBytes parses and validates subjects from YAML bytes.
//
// Postcondition: Every returned subject passes Validate; effect CreatedSeq values are
// assigned in file order where unset.
func LoadSubjectsFromBytes(data []byte, schemas stats.Schemas) ([]*Subject, error) {
	var file yamlSubjectFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing subject YAML: %w", err)
	}
	subjects := file.Subjects
	if file.Subject != nil {
		subjects = append([]*Subject{file.Subject}, subjects...)
	}
	for _, s := range subjects {
		assignSequence(s)
		if err := s.Validate(schemas); err != nil {
			return nil, fmt.Errorf("validating subject: %w", err)
		}
	}
	return subjects, nil
}

// LoadSubjectsFromDir loads all YAML files in dir as subjects.
//
// Postcondition: Returns all validated subjects or the first error encountered.
func LoadSubjectsFromDir(dir string, schemas stats.Schemas) ([]*Subject, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading subject directory %s: %w", dir, err)
	}
	var out []*Subject
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		subjects, err := LoadSubjectsFromFile(filepath.Join(dir, name), schemas)
		if err != nil {
			return nil, fmt.Errorf("loading subjects from %s: %w", name, err)
		}
		out = append(out, subjects...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no subject files found in %s", dir)
	}
	return out, nil
}

// LinkItemEffects copies the library template named by every item EffectRefs entry into
// the item's effects and clears the references.
//
// Postcondition: Returns an error naming the first unknown template; subjects before it
// are already linked. A reference whose ID the item already carries is skipped.
func LinkItemEffects(subjects []*Subject, lib *effect.Library) error {
	for _, s := range subjects {
		for _, it := range s.Items {
			for _, ref := range it.EffectRefs {
				if _, ok := it.FindEffect(ref); ok {
					continue
				}
				def, ok := lib.Get(ref)
				if !ok {
					return fmt.Errorf("subject %q item %q: unknown effect template %q", s.ID, it.ID, ref)
				}
				it.Effects = append(it.Effects, def)
			}
			it.EffectRefs = nil
		}
		assignSequence(s)
	}
	return nil
}

func assignSequence(s *Subject) {
	seq := s.MaxCreatedSeq()
	for _, e := range s.Effects {
		if e.CreatedSeq == 0 {
			seq++
			e.CreatedSeq = seq
		}
	}
	for _, it := range s.Items {
		for _, e := range it.Effects {
			if e.CreatedSeq == 0 {
				seq++
				e.CreatedSeq = seq
			}
		}
	}
}
