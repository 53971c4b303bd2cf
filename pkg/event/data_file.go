package event

// FileOpenData is the payload for event type "file.open". Fields supplement
// the base envelope with the filesystem-activity shape the original capture
// crates produce (path, fd, flags, mode) but the distilled data model left
// implicit.
type FileOpenData struct {
	Path  string  `json:"path"`
	Fd    int     `json:"fd"`
	Flags []string `json:"flags,omitempty"`
	Mode  *int    `json:"mode,omitempty"`
}

func (*FileOpenData) EventType() string { return EventTypeFileOpen }

// FileReadData is the payload for event type "file.read".
type FileReadData struct {
	Fd    int `json:"fd"`
	Bytes int `json:"bytes"`
}

func (*FileReadData) EventType() string { return EventTypeFileRead }

// FileWriteData is the payload for event type "file.write".
type FileWriteData struct {
	Fd    int `json:"fd"`
	Bytes int `json:"bytes"`
}

func (*FileWriteData) EventType() string { return EventTypeFileWrite }

// FileCloseData is the payload for event type "file.close".
type FileCloseData struct {
	Fd int `json:"fd"`
}

func (*FileCloseData) EventType() string { return EventTypeFileClose }
