package units

import (
	"encoding/json"

	"github.com/JaimeStill/qbank/pkg/query"
	"github.com/JaimeStill/qbank/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "course_units", "u").
	Project("id", "ID").
	Project("course_code", "CourseCode").
	Project("unit_number", "UnitNumber").
	Project("name", "Name").
	Project("topics", "Topics").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{Field: "UnitNumber"}

func scanUnit(s repository.Scanner) (Unit, error) {
	var (
		u      Unit
		topics []byte
	)
	err := s.Scan(
		&u.ID,
		&u.CourseCode,
		&u.UnitNumber,
		&u.Name,
		&topics,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return u, err
	}

	u.Topics = []string{}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &u.Topics); err != nil {
			return u, err
		}
	}
	return u, nil
}
