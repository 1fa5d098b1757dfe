// Package units implements the course syllabus reference data that questions
// are classified against. Each unit carries the topic list used as
// classification context.
package units

import (
	"slices"
	"strings"
	"time"
)

// Unit is one syllabus unit of a course.
type Unit struct {
	ID         int64     `json:"id"`
	CourseCode string    `json:"course_code"`
	UnitNumber int       `json:"unit_number"`
	Name       string    `json:"name"`
	Topics     []string  `json:"topics"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UpsertCommand creates or replaces the unit identified by course code and unit number.
type UpsertCommand struct {
	CourseCode string   `json:"course_code"`
	UnitNumber int      `json:"unit_number"`
	Name       string   `json:"name"`
	Topics     []string `json:"topics"`
}

// Validate checks the command for required fields and normalizes the topic list.
func (c *UpsertCommand) Validate() error {
	c.CourseCode = strings.ToUpper(strings.TrimSpace(c.CourseCode))
	c.Name = strings.TrimSpace(c.Name)
	if c.CourseCode == "" || c.Name == "" || c.UnitNumber < 1 {
		return ErrInvalidUnit
	}

	topics := make([]string, 0, len(c.Topics))
	for _, t := range c.Topics {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(topics, t) {
			topics = append(topics, t)
		}
	}
	c.Topics = topics
	return nil
}

// Neighborhood returns the IDs of the units whose number is within one of
// the unit with the given ID, including that unit. Returns nil when id is
// not in list.
func Neighborhood(list []Unit, id int64) []int64 {
	idx := slices.IndexFunc(list, func(u Unit) bool { return u.ID == id })
	if idx < 0 {
		return nil
	}

	number := list[idx].UnitNumber
	ids := make([]int64, 0, 3)
	for _, u := range list {
		if d := u.UnitNumber - number; d >= -1 && d <= 1 {
			ids = append(ids, u.ID)
		}
	}
	slices.Sort(ids)
	return ids
}
