// Package schedule models the read-only course context supplied by the
// host's schedule subsystem.
package schedule

// Subject is a course with its teacher and location.
type Subject struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Teacher  string `json:"teacher"`
	Location string `json:"location"`
}

// Entry is a single timetable slot. SubjectID may be empty for entries
// without a structured subject (activities, breaks).
type Entry struct {
	Title     string `json:"title"`
	SubjectID string `json:"subjectId"`
}

// Source exposes the host's current schedule position. All methods are
// best effort; a false/empty result simply leaves context fields blank.
type Source interface {
	// CurrentSubject returns the subject of the running entry, if any.
	CurrentSubject() (Subject, bool)

	// CurrentEntry returns the running timetable entry, if any.
	CurrentEntry() (Entry, bool)

	// NextEntries returns the upcoming timetable entries in order.
	NextEntries() []Entry

	// Subject resolves a subject by id.
	Subject(id string) (Subject, bool)
}

// Context carries the structured course fields available to announcement
// templates. Any field may be empty.
type Context struct {
	Subject      string `json:"subject"`
	Teacher      string `json:"teacher"`
	Location     string `json:"location"`
	NextSubject  string `json:"next_subject"`
	NextTeacher  string `json:"next_teacher"`
	NextLocation string `json:"next_location"`
}

// Derive builds a Context from src. The current entry's bare title stands
// in when no structured subject is running, and likewise for the next
// entry. A nil src yields an empty Context.
func Derive(src Source) Context {
	var ctx Context
	if src == nil {
		return ctx
	}

	if subj, ok := src.CurrentSubject(); ok {
		ctx.Subject = subj.Name
		ctx.Teacher = subj.Teacher
		ctx.Location = subj.Location
	}
	if ctx.Subject == "" {
		if entry, ok := src.CurrentEntry(); ok {
			ctx.Subject = entry.Title
		}
	}

	next := src.NextEntries()
	if len(next) == 0 {
		return ctx
	}
	entry := next[0]
	if entry.SubjectID != "" {
		if subj, ok := src.Subject(entry.SubjectID); ok {
			ctx.NextSubject = subj.Name
			ctx.NextTeacher = subj.Teacher
			ctx.NextLocation = subj.Location
		}
	}
	if ctx.NextSubject == "" {
		ctx.NextSubject = entry.Title
	}
	return ctx
}
