package model

import "time"

// Commit is one record of a story's completion commit.
type Commit struct {
	StoryID   int       `json:"storyId"`
	SHA       string    `json:"sha"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PrdProgress tracks a PRD runner's advancement through a Prd's stories.
// Invariant: CompletedStoryIDs is always a subset of the ids of stories
// marked Passes=true in the current Prd snapshot.
type PrdProgress struct {
	CurrentStoryID    *int    `json:"currentStoryId,omitempty"`
	CompletedStoryIDs []int   `json:"completedStoryIds"`
	Commits           []Commit `json:"commits"`
}

// MarkCompleted records a story as completed and appends its commit, without
// duplicating an id already present.
func (p PrdProgress) MarkCompleted(storyID int, c Commit) PrdProgress {
	found := false
	for _, id := range p.CompletedStoryIDs {
		if id == storyID {
			found = true
			break
		}
	}
	if !found {
		p.CompletedStoryIDs = append(p.CompletedStoryIDs, storyID)
	}
	p.Commits = append(p.Commits, c)
	return p
}
