package domain

import (
	"encoding/json"
	"time"
)

// GenerationType enumerates the supported generation job categories.
type GenerationType string

const (
	GenerationTypeImage GenerationType = "image"
	GenerationTypeVideo GenerationType = "video"
)

// Valid reports whether t is a known generation type.
func (t GenerationType) Valid() bool {
	return t == GenerationTypeImage || t == GenerationTypeVideo
}

// Status is the lifecycle state of a generation record. Besides the canonical
// values below, providers may report any other string while a job is running;
// such values are carried through verbatim and treated as in progress.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions or polling may happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Generation is the durable record of one submitted job.
type Generation struct {
	ID             string          `json:"id"`
	Type           GenerationType  `json:"type"`
	Prompt         string          `json:"prompt"`
	SystemContext  string          `json:"system_context,omitempty"`
	Storyboard     string          `json:"storyboard,omitempty"`
	NegativePrompt string          `json:"negative_prompt,omitempty"`
	Model          string          `json:"model,omitempty"`
	AspectRatio    string          `json:"aspect_ratio,omitempty"`
	Duration       int             `json:"duration,omitempty"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	TaskID         string          `json:"task_id,omitempty"`
	ResultPath     string          `json:"result_path,omitempty"`
	ResultURL      string          `json:"result_url,omitempty"`
	ThumbnailPath  string          `json:"thumbnail_path,omitempty"`
	RawAPIResponse json.RawMessage `json:"api_response,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// GenerationParams are the caller supplied fields of a new record.
type GenerationParams struct {
	Type           GenerationType
	Prompt         string
	SystemContext  string
	Storyboard     string
	NegativePrompt string
	Model          string
	AspectRatio    string
	Duration       int
}

// GenerationPatch is a partial update. Nil fields are left untouched.
type GenerationPatch struct {
	Status         *Status
	Progress       *int
	TaskID         *string
	ResultPath     *string
	ResultURL      *string
	ThumbnailPath  *string
	RawAPIResponse json.RawMessage
	ErrorMessage   *string

	// RevokeCompleted lets Status replace completed and clears result_path.
	// It is set only when a completed record lost its artifact and fetching it
	// again failed.
	RevokeCompleted bool
}

// Transition describes the record touched by an update and the status it held
// immediately before the update was applied.
type Transition struct {
	ID       string
	Type     GenerationType
	Prompt   string
	Previous Status
	Current  Status
}

// Completed reports whether the update moved the record into completed.
func (t Transition) Completed() bool {
	return t.Previous != StatusCompleted && t.Current == StatusCompleted
}

// GenerationFilter narrows history listings.
type GenerationFilter struct {
	Type     GenerationType
	Status   Status
	Search   string
	Page     int
	PageSize int
}

// GenerationPage is one page of a history listing.
type GenerationPage struct {
	Items    []Generation `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// GenerationStats summarizes the record store for the history view.
type GenerationStats struct {
	TotalVideos int `json:"total_videos"`
	TotalImages int `json:"total_images"`
	Completed   int `json:"completed"`
}

// StatusPtr, IntPtr and StringPtr build patch fields inline.
func StatusPtr(s Status) *Status { return &s }

func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }
