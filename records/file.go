package records

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a records file.
type File struct {
	School   School    `yaml:"school" json:"school"`
	Students []Student `yaml:"students" json:"students"`
}

// FileSource serves students from a YAML or JSON file loaded once into memory.
// It is safe for concurrent use after construction.
type FileSource struct {
	school   School
	students map[string]Student
}

var _ Source = (*FileSource)(nil)

// LoadFile reads path and decodes it as JSON when the extension is .json,
// YAML otherwise.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read records")
	}
	var f File
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}
	return NewFileSource(f)
}

// NewFileSource indexes f by admission number. Duplicate numbers are rejected.
func NewFileSource(f File) (*FileSource, error) {
	src := &FileSource{school: f.School, students: make(map[string]Student, len(f.Students))}
	for i, st := range f.Students {
		if err := st.Validate(); err != nil {
			return nil, errors.Wrapf(err, "students[%d]", i)
		}
		key := normalize(st.AdmissionNo)
		if _, dup := src.students[key]; dup {
			return nil, errors.Errorf("students[%d]: duplicate admission number %s", i, st.AdmissionNo)
		}
		src.students[key] = st
	}
	return src, nil
}

// Student implements Source.
func (s *FileSource) Student(ctx context.Context, admissionNo string) (Student, error) {
	if err := ctx.Err(); err != nil {
		return Student{}, err
	}
	st, ok := s.students[normalize(admissionNo)]
	if !ok {
		return Student{}, errors.Wrapf(ErrNotFound, "admission number %q", admissionNo)
	}
	return st, nil
}

// School returns the school block of the file.
func (s *FileSource) School() School { return s.school }

// AdmissionNumbers lists every known admission number in sorted order.
func (s *FileSource) AdmissionNumbers() []string {
	out := make([]string, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st.AdmissionNo)
	}
	sort.Strings(out)
	return out
}

func normalize(no string) string {
	return strings.ToUpper(strings.TrimSpace(no))
}
