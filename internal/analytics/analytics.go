// Package analytics computes the aggregate counts shown on the admin dashboard.
package analytics

// Dashboard summarises the question bank.
type Dashboard struct {
	TotalPapers       int            `json:"total_papers"`
	TotalQuestions    int            `json:"total_questions"`
	PendingReview     int            `json:"pending_review"`
	BloomDistribution map[string]int `json:"bloom_distribution"`
	Courses           []CourseCount  `json:"courses"`
}

// CourseCount is the per-course breakdown of papers and questions.
type CourseCount struct {
	CourseCode string `json:"course_code"`
	Papers     int    `json:"papers"`
	Questions  int    `json:"questions"`
	InReview   int    `json:"in_review"`
}

// Filters narrows the dashboard to one course.
type Filters struct {
	CourseCode *string `json:"course_code,omitempty"`
}

const unclassified = "Unclassified"
