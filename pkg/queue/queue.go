// Package queue defines the durable task queue and result rendezvous used to
// hand chunk-persistence work to consumers when no in-process worker pool is
// configured.
package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// ChunkWriteTask is the unit of work handed to a consumer: persist one
// chunk's bytes to the object store.
type ChunkWriteTask struct {
	TaskID          string `json:"task_id"`
	UploadID        string `json:"upload_id"`
	ChunkIndex      int    `json:"chunk_index"`
	MultipartToken  string `json:"multipart_token,omitempty"`
	Payload         []byte `json:"payload"`
}

// wireTask is the canonical JSON projection used by external backends
// (Redis, SQS): the payload is base64-encoded since JSON strings must be
// valid UTF-8.
type wireTask struct {
	TaskID         string `json:"task_id"`
	UploadID       string `json:"upload_id"`
	ChunkIndex     int    `json:"chunk_index"`
	MultipartToken string `json:"multipart_token,omitempty"`
	PayloadB64     string `json:"payload_b64"`
}

// Marshal serializes t to its canonical wire form.
func Marshal(t ChunkWriteTask) ([]byte, error) {
	w := wireTask{
		TaskID:         t.TaskID,
		UploadID:       t.UploadID,
		ChunkIndex:     t.ChunkIndex,
		MultipartToken: t.MultipartToken,
		PayloadB64:     base64.StdEncoding.EncodeToString(t.Payload),
	}
	return json.Marshal(w)
}

// Unmarshal parses the canonical wire form produced by Marshal.
func Unmarshal(data []byte) (ChunkWriteTask, error) {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return ChunkWriteTask{}, fmt.Errorf("unmarshal task: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(w.PayloadB64)
	if err != nil {
		return ChunkWriteTask{}, fmt.Errorf("decode task payload: %w", err)
	}
	return ChunkWriteTask{
		TaskID:         w.TaskID,
		UploadID:       w.UploadID,
		ChunkIndex:     w.ChunkIndex,
		MultipartToken: w.MultipartToken,
		Payload:        payload,
	}, nil
}

// Delivery wraps a dequeued task together with an opaque ack handle some
// backends need (e.g. SQS's receipt handle).
type Delivery struct {
	Task          ChunkWriteTask
	AckHandle     string
}

// Queue is the durable task queue abstraction. Producers Enqueue; one
// goroutine per configured consumer calls Dequeue in a loop and Acks after
// processing (successfully or not — delivery is at-least-once, and
// idempotent chunk processing makes duplicate delivery safe).
type Queue interface {
	Enqueue(ctx context.Context, task ChunkWriteTask) error

	// Dequeue blocks up to pollTimeout waiting for a task. Returns
	// (Delivery{}, false, nil) on a timeout with no task available.
	Dequeue(ctx context.Context, pollTimeout time.Duration) (Delivery, bool, error)

	Ack(ctx context.Context, delivery Delivery) error

	// Backend returns the configured backend name, used by /version.
	Backend() string
}
