package domain

import "testing"

func TestUploadState_String(t *testing.T) {
	tests := []struct {
		state UploadState
		want  string
	}{
		{UploadPending, "Pending"},
		{UploadUploading, "Uploading"},
		{UploadPaused, "Paused"},
		{UploadCompleted, "Completed"},
		{UploadFailed, "Failed"},
		{UploadAborted, "Aborted"},
		{UploadState(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("UploadState(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestUploadState_Terminal(t *testing.T) {
	terminal := []UploadState{UploadCompleted, UploadFailed, UploadAborted}
	active := []UploadState{UploadPending, UploadUploading, UploadPaused}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", s)
		}
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", s)
		}
	}
}

func TestUploadState_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from UploadState
		to   UploadState
		want bool
	}{
		{"pending to uploading", UploadPending, UploadUploading, true},
		{"pending to failed", UploadPending, UploadFailed, true},
		{"pending to aborted", UploadPending, UploadAborted, true},
		{"pending to completed", UploadPending, UploadCompleted, false},
		{"uploading to paused", UploadUploading, UploadPaused, true},
		{"uploading to completed", UploadUploading, UploadCompleted, true},
		{"uploading to failed", UploadUploading, UploadFailed, true},
		{"uploading to aborted", UploadUploading, UploadAborted, true},
		{"paused to uploading", UploadPaused, UploadUploading, true},
		{"paused to failed", UploadPaused, UploadFailed, true},
		{"paused to aborted", UploadPaused, UploadAborted, true},
		{"paused to completed", UploadPaused, UploadCompleted, false},
		{"completed allows nothing", UploadCompleted, UploadFailed, false},
		{"failed allows nothing", UploadFailed, UploadAborted, false},
		{"aborted allows nothing", UploadAborted, UploadUploading, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
