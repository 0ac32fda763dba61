package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/warden"
	"github.com/xraph/warden/id"
)

// DefaultQueue is used when a job names no queue.
const DefaultQueue = "default"

// Job is the envelope stored in Redis lists. The encoded string is the
// job's identity inside the coordination layer: acknowledgment and
// requeue match it byte for byte.
type Job struct {
	JID        id.ID           `json:"jid"`
	Class      string          `json:"class"`
	Queue      string          `json:"queue"`
	Args       json.RawMessage `json:"args,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// New builds a job with a fresh ID. args is JSON-encoded.
func New(class, queue string, args any) (*Job, error) {
	if class == "" {
		return nil, fmt.Errorf("%w: empty class", warden.ErrInvalidJob)
	}
	if queue == "" {
		queue = DefaultQueue
	}
	j := &Job{
		JID:        id.NewJobID(),
		Class:      class,
		Queue:      queue,
		EnqueuedAt: time.Now().UTC(),
	}
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal args: %w", warden.ErrInvalidJob, err)
		}
		j.Args = b
	}
	return j, nil
}

// Encode returns the string pushed to Redis.
func (j *Job) Encode() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("%w: encode: %w", warden.ErrInvalidJob, err)
	}
	return string(b), nil
}

// Decode parses an encoded job. The envelope must carry an ID, a class
// and a queue.
func Decode(raw string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", warden.ErrInvalidJob, err)
	}
	if j.JID.IsNil() || j.Class == "" || j.Queue == "" {
		return nil, fmt.Errorf("%w: missing jid, class or queue", warden.ErrInvalidJob)
	}
	return &j, nil
}

// QueueOf extracts the queue name from an encoded job, or "" when the
// envelope cannot be read.
func QueueOf(raw string) string {
	var env struct {
		Queue string `json:"queue"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return ""
	}
	return env.Queue
}
