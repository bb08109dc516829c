package core

import "github.com/google/uuid"

// ImageMime identifies the MIME type of an inline image attachment.
type ImageMime string

// Supported image attachment MIME types.
const (
	ImageJPEG ImageMime = "image/jpeg"
	ImagePNG  ImageMime = "image/png"
	ImageGIF  ImageMime = "image/gif"
	ImageWEBP ImageMime = "image/webp"
)

// ImageAttachment is an inline image carried by a task or chat message.
type ImageAttachment struct {
	Mime ImageMime `json:"mime"`
	Data []byte    `json:"data"`
}

// Clone returns a deep copy of the attachment.
func (a *ImageAttachment) Clone() *ImageAttachment {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &ImageAttachment{Mime: a.Mime, Data: data}
}

// Task is a unit of work consumed by exactly one actor. It is immutable after
// creation; when a topic fans out to several subscribers each one receives its
// own clone. The submission id correlates every event the run emits.
type Task struct {
	SubmissionID string           `json:"submission_id"`
	Prompt       string           `json:"prompt"`
	Image        *ImageAttachment `json:"image,omitempty"`
}

// NewTask creates a task with a fresh submission id.
func NewTask(prompt string) Task {
	return Task{SubmissionID: NewID(), Prompt: prompt}
}

// NewTaskWithImage creates a task carrying an inline image attachment.
func NewTaskWithImage(prompt string, mime ImageMime, data []byte) Task {
	t := NewTask(prompt)
	t.Image = &ImageAttachment{Mime: mime, Data: data}
	return t
}

// Clone returns a deep copy of the task, including attachment bytes. The
// submission id is preserved so fanned-out deliveries stay correlated.
func (t Task) Clone() Task {
	t.Image = t.Image.Clone()
	return t
}

// NewID generates a new unique identifier used for submissions, actors,
// runtimes and topics.
func NewID() string { return uuid.NewString() }
