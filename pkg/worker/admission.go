package worker

import "sync"

// RejectReason is the X-RateLimit-Reason value attached to a 429 response.
type RejectReason string

const (
	ReasonQueueFull       RejectReason = "queue_full"
	ReasonGlobalInflight  RejectReason = "global_inflight_limit"
	ReasonUploadInflight  RejectReason = "upload_inflight_limit"
	ReasonUploadFairShare RejectReason = "upload_fair_share_limit"
)

// AdmissionConfig bounds the three admission tiers.
type AdmissionConfig struct {
	TaskQueueMaxSize               int
	MaxGlobalInflightChunks        int
	MaxInflightChunksPerUpload     int
	MaxFairInflightChunksPerUpload int
}

// Admission is the three-tier gate evaluated on every chunk submission. It
// tracks per-upload inflight counts in its own mutex, independent of the
// pool's internal counters, since fair-share accounting is keyed by upload
// rather than by worker.
type Admission struct {
	cfg  AdmissionConfig
	pool *Pool

	mu             sync.Mutex
	perUpload      map[string]int
	globalInflight int
}

// NewAdmission creates a gate bound to pool, whose QueueDepth feeds the
// queue-full tier.
func NewAdmission(cfg AdmissionConfig, pool *Pool) *Admission {
	return &Admission{
		cfg:       cfg,
		pool:      pool,
		perUpload: make(map[string]int),
	}
}

// TryAcquire evaluates the three tiers in order and, if all pass, reserves a
// slot for uploadID. Callers must call Release exactly once after the job
// finishes (success or failure) when ok is true.
// TryAcquire compares directly against each configured cap, including zero:
// a cap of zero means zero capacity (admit nothing), not "unlimited" — a
// caller with max_inflight_chunks_per_upload=0 gets a 429 on every chunk PUT
// for that upload. Callers that want a tier disabled must size it generously
// instead (config.ApplyDefaults never leaves one at its zero value).
func (a *Admission) TryAcquire(uploadID string) (ok bool, reason RejectReason) {
	if a.pool.QueueDepth() >= a.cfg.TaskQueueMaxSize {
		return false, ReasonQueueFull
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.globalInflight >= a.cfg.MaxGlobalInflightChunks {
		return false, ReasonGlobalInflight
	}

	current := a.perUpload[uploadID]
	if current >= a.cfg.MaxInflightChunksPerUpload {
		return false, ReasonUploadInflight
	}
	if current >= a.cfg.MaxFairInflightChunksPerUpload {
		return false, ReasonUploadFairShare
	}

	a.globalInflight++
	a.perUpload[uploadID] = current + 1
	return true, ""
}

// Release frees the slot reserved by a successful TryAcquire.
func (a *Admission) Release(uploadID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.globalInflight--
	if a.globalInflight < 0 {
		a.globalInflight = 0
	}

	if n := a.perUpload[uploadID] - 1; n > 0 {
		a.perUpload[uploadID] = n
	} else {
		delete(a.perUpload, uploadID)
	}
}

// Snapshot is the counters consumed by the autoscaler.
type Snapshot struct {
	Queued   int
	Inflight int
	Workers  int
}

// Snapshot reads the pool's current counters.
func (a *Admission) Snapshot() Snapshot {
	return Snapshot{
		Queued:   a.pool.QueueDepth(),
		Inflight: a.pool.Inflight(),
		Workers:  a.pool.WorkerCount(),
	}
}

// Counts is the same data as Snapshot, shaped for autoscale.Snapshotter.
func (a *Admission) Counts() (queued, inflight, workers int) {
	s := a.Snapshot()
	return s.Queued, s.Inflight, s.Workers
}
