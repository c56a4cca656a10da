package models

import "time"

// WeightEntry is one body-weight log entry.
type WeightEntry struct {
	SyncMeta
	UserID string    `json:"user_id" db:"user_id"`
	Weight float64   `json:"weight" db:"weight"`
	Unit   string    `json:"unit" db:"unit"`
	Date   time.Time `json:"date" db:"date"`
	Note   string    `json:"note" db:"note"`
}

// Measurement is one body measurement (waist, chest, etc.).
type Measurement struct {
	SyncMeta
	UserID string    `json:"user_id" db:"user_id"`
	Metric string    `json:"metric" db:"metric"`
	Value  float64   `json:"value" db:"value"`
	Unit   string    `json:"unit" db:"unit"`
	Date   time.Time `json:"date" db:"date"`
}

// PersonalRecord is a best-lift entry. The engine only moves these around;
// detecting them is the backend's job.
type PersonalRecord struct {
	SyncMeta
	UserID     string    `json:"user_id" db:"user_id"`
	ExerciseID string    `json:"exercise_id" db:"exercise_id"`
	Exercise   string    `json:"exercise" db:"exercise"`
	Weight     float64   `json:"weight" db:"weight"`
	Reps       int       `json:"reps" db:"reps"`
	OneRepMax  float64   `json:"one_rep_max" db:"one_rep_max"`
	AchievedAt time.Time `json:"achieved_at" db:"achieved_at"`
}
