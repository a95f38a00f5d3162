package domain

import "time"

// CoursePackage is the assembled course document handed to the serving layer.
type CoursePackage struct {
	CourseID          string    `json:"courseId"`
	Topic             string    `json:"topic"`
	SubTopic          string    `json:"subTopic"`
	SubTags           []string  `json:"subTags"`
	CourseName        string    `json:"courseName"`
	CourseDescription string    `json:"courseDescription"`
	Coherence         float64   `json:"coherence"`
	Sessions          []Session `json:"sessions"`
	Publishable       bool      `json:"publishable"`
	Educational       bool      `json:"educational"`
	RefineReason      string    `json:"refineReason,omitempty"`
}

type Session struct {
	SessionID   int         `json:"sessionId"`
	Headline    string      `json:"headline"`
	Summary     string      `json:"summary"`
	Publisher   string      `json:"publisher"`
	PublishedAt time.Time   `json:"publishedAt"`
	SourceURL   string      `json:"sourceUrl"`
	Quizzes     []QuizLevel `json:"quizzes"`
}

type QuizLevel struct {
	Level Tier   `json:"level"`
	Steps []Step `json:"steps"`
}

type Step struct {
	StepOrder   int         `json:"stepOrder"`
	ContentType ContentType `json:"contentType"`
	Contents    []QuizItem  `json:"contents"`
	Complete    bool        `json:"complete"`
}

// CourseMetadata is the descriptive part of a course.
type CourseMetadata struct {
	CourseName        string   `json:"courseName"`
	CourseDescription string   `json:"courseDescription"`
	SubTopic          string   `json:"subTopic"`
	SubTags           []string `json:"subTags"`
	Fallback          bool     `json:"-"`
}
