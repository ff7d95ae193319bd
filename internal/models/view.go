package models

import "time"

// View is what the page shows. It is derived from controller state and is
// never written back.
type View struct {
	Revision        uint64               `json:"revision"`
	FileNameDisplay string               `json:"fileNameDisplay"`
	SubmitEnabled   bool                 `json:"submitEnabled"`
	SubmitLabel     string               `json:"submitLabel"`
	StatusVisible   bool                 `json:"statusVisible"`
	StatusText      string               `json:"statusText"`
	ProgressVisible bool                 `json:"progressVisible"`
	ProgressPercent int                  `json:"progressPercent"`
	ProgressText    string               `json:"progressText"`
	DownloadVisible bool                 `json:"downloadVisible"`
	DownloadEnabled bool                 `json:"downloadEnabled"`
	Job             *Job                 `json:"job,omitempty"`
	Tables          map[string]TableData `json:"tables"`
}

// DownloadLink is a short-lived link to the sorted object.
type DownloadLink struct {
	URL       string    `json:"url"`
	FileName  string    `json:"fileName"`
	ExpiresAt time.Time `json:"expiresAt"`
}
