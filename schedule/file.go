package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileSource is a Source backed by a JSON snapshot on disk:
//
//	{
//	  "subjects": {"math": {"name": "数学", "teacher": "张老师", "location": "A201"}},
//	  "current":  {"title": "数学", "subjectId": "math"},
//	  "next":     [{"title": "英语", "subjectId": "english"}]
//	}
//
// Reload swaps the snapshot in place, so a FileSource can track a file
// rewritten by an external scheduler.
type FileSource struct {
	mu   sync.RWMutex
	data snapshot
}

type snapshot struct {
	Subjects map[string]Subject `json:"subjects"`
	Current  *Entry             `json:"current"`
	Next     []Entry            `json:"next"`
}

// LoadFile reads a schedule snapshot from path.
func LoadFile(path string) (*FileSource, error) {
	s := &FileSource{}
	if err := s.Reload(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the snapshot with the current file contents.
func (s *FileSource) Reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading schedule: %w", err)
	}

	var data snapshot
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parsing schedule %q: %w", path, err)
	}
	for id, subj := range data.Subjects {
		subj.ID = id
		data.Subjects[id] = subj
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *FileSource) CurrentSubject() (Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.Current == nil || s.data.Current.SubjectID == "" {
		return Subject{}, false
	}
	subj, ok := s.data.Subjects[s.data.Current.SubjectID]
	return subj, ok
}

func (s *FileSource) CurrentEntry() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.Current == nil {
		return Entry{}, false
	}
	return *s.data.Current, true
}

func (s *FileSource) NextEntries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.data.Next))
	copy(out, s.data.Next)
	return out
}

func (s *FileSource) Subject(id string) (Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subj, ok := s.data.Subjects[id]
	return subj, ok
}
