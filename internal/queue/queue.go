// Package queue is the Redis-list job queue between the API (producer) and
// the agent worker (consumer).
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobsKey = "toora:agent_jobs"

// Action is one proposed consequential action carried by a job. The planner
// that decides which actions to take lives outside this service; jobs arrive
// with actions already concrete.
type Action struct {
	Type        string         `json:"type"` // e.g. send_email, create_notion_task
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Job is one unit of agent work.
type Job struct {
	TriggeredBy string   `json:"triggered_by"` // manual | schedule | chat
	Input       string   `json:"input,omitempty"`
	Actions     []Action `json:"actions,omitempty"`
}

// Queue produces and consumes agent jobs.
type Queue struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes a job to the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, jobsKey, data).Err()
}

// Dequeue blocks up to timeout for the next job. Returns nil, nil when the
// wait times out with an empty queue.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, jobsKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// BLPOP returns [key, value]
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Len reports the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, jobsKey).Result()
}
