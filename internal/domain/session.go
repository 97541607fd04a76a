package domain

// UploadState represents the lifecycle state of an upload session.
type UploadState int

const (
	UploadPending UploadState = iota
	UploadUploading
	UploadPaused
	UploadCompleted
	UploadFailed
	UploadAborted
)

// String returns a human-readable representation of the state.
func (s UploadState) String() string {
	switch s {
	case UploadPending:
		return "Pending"
	case UploadUploading:
		return "Uploading"
	case UploadPaused:
		return "Paused"
	case UploadCompleted:
		return "Completed"
	case UploadFailed:
		return "Failed"
	case UploadAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s UploadState) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed || s == UploadAborted
}

// CanTransition reports whether a session may move from s to next.
// Terminal states permit nothing, which is what makes "at most one terminal
// callback per session" hold by construction rather than caller discipline.
func (s UploadState) CanTransition(next UploadState) bool {
	switch s {
	case UploadPending:
		return next == UploadUploading || next == UploadFailed || next == UploadAborted
	case UploadUploading:
		return next == UploadPaused || next == UploadCompleted ||
			next == UploadFailed || next == UploadAborted
	case UploadPaused:
		return next == UploadUploading || next == UploadFailed || next == UploadAborted
	default:
		return false
	}
}

// FileSignature is the stable identity used to discover a resumable upload
// session for a given file across interruptions and process restarts.
type FileSignature struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// UploadGrant is the remote response to session creation or resume
// discovery. ResumeOffset is the byte position already received; zero for a
// fresh session.
type UploadGrant struct {
	SessionID    string
	ResumeOffset int64
}
