package models

import "time"

// Workout is one logged training session.
type Workout struct {
	SyncMeta
	UserID      string    `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Notes       string    `json:"notes" db:"notes"`
	Rating      int       `json:"rating" db:"rating"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	DurationSec int       `json:"duration_sec" db:"duration_sec"`

	// Aggregates computed server-side; never overwritten by stale local math.
	TotalVolume float64 `json:"total_volume" db:"total_volume"`
	TotalSets   int     `json:"total_sets" db:"total_sets"`
	TotalReps   int     `json:"total_reps" db:"total_reps"`

	Exercises []WorkoutExercise `json:"exercises" db:"exercises"`
}

type WorkoutExercise struct {
	ExerciseID string       `json:"exercise_id"`
	Name       string       `json:"name"`
	Sets       []WorkoutSet `json:"sets"`
}

type WorkoutSet struct {
	Weight    float64 `json:"weight"`
	Reps      int     `json:"reps"`
	Completed bool    `json:"completed"`
}

// MergeRemote applies field-level preference after a whole-record winner has
// been chosen in favor of the local copy: user-editable fields keep whichever
// side is newer, computed aggregates and the structural exercise list always
// take the remote value.
func (w *Workout) MergeRemote(remote Syncable) {
	rw, ok := remote.(*Workout)
	if !ok {
		return
	}

	w.TotalVolume = rw.TotalVolume
	w.TotalSets = rw.TotalSets
	w.TotalReps = rw.TotalReps
	w.Exercises = rw.Exercises

	if rw.UpdatedAt.After(w.UpdatedAt) {
		w.Name = rw.Name
		w.Notes = rw.Notes
		w.Rating = rw.Rating
	}
}

// Template is a reusable workout plan.
type Template struct {
	SyncMeta
	UserID      string `json:"user_id" db:"user_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	// Computed server-side.
	ExerciseCount    int `json:"exercise_count" db:"exercise_count"`
	EstimatedMinutes int `json:"estimated_minutes" db:"estimated_minutes"`

	Exercises []TemplateExercise `json:"exercises" db:"exercises"`
}

type TemplateExercise struct {
	ExerciseID string `json:"exercise_id"`
	Name       string `json:"name"`
	Sets       int    `json:"sets"`
	Reps       int    `json:"reps"`
}

func (t *Template) MergeRemote(remote Syncable) {
	rt, ok := remote.(*Template)
	if !ok {
		return
	}

	t.ExerciseCount = rt.ExerciseCount
	t.EstimatedMinutes = rt.EstimatedMinutes
	t.Exercises = rt.Exercises

	if rt.UpdatedAt.After(t.UpdatedAt) {
		t.Name = rt.Name
		t.Description = rt.Description
	}
}
