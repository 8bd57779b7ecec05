package models

import "time"

type License struct {
	Holder    string
	CourseID  uint64
	ExpiresAt time.Time
}

func (l *License) IsValid(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

type Progress struct {
	Holder            string
	CourseID          uint64
	CompletedSections int
	TotalSections     int
	Percentage        int
	Completed         []bool // indexed by section order index
}

// ZeroProgress is what viewers see when progress can't be loaded.
func ZeroProgress(holder string, courseID uint64) Progress {
	return Progress{
		Holder:    holder,
		CourseID:  courseID,
		Completed: []bool{},
	}
}

func (p *Progress) IsSectionCompleted(index int) bool {
	return index >= 0 && index < len(p.Completed) && p.Completed[index]
}
