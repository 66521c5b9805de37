package session

import (
	"time"

	"github.com/go-go-golems/swaperoo/pkg/bluegreen"
)

// Status is the session lifecycle position. Terminal statuses are sticky.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// IngestError records one failure observed during a session. The list on
// a session is bounded; older entries are kept, later ones dropped.
type IngestError struct {
	BatchNumber int       `json:"batchNumber,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	DocumentRef string    `json:"documentRef,omitempty"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session coordinates one streaming batch ingest into a staging index.
type Session struct {
	ID                 string             `json:"sessionId"`
	Alias              string             `json:"alias"`
	TargetIndex        string             `json:"targetIndex"`
	TargetColor        bluegreen.Color    `json:"targetColor"`
	Strategy           bluegreen.Strategy `json:"strategy"`
	TotalBatches       int                `json:"totalBatches"`
	ProcessedBatches   int                `json:"processedBatches"`
	TotalDocuments     int                `json:"totalDocuments"`
	ProcessedDocuments int                `json:"processedDocuments"`
	FailedDocuments    int                `json:"failedDocuments"`
	EstimatedTotal     int                `json:"estimatedTotal,omitempty"`
	Status             Status             `json:"status"`
	CreatedAt          time.Time          `json:"createdAt"`
	LastBatchAt        time.Time          `json:"lastBatchAt"`
	Errors             []IngestError      `json:"errors"`
}

func (s *Session) clone() *Session {
	copied := *s
	copied.Errors = append([]IngestError(nil), s.Errors...)
	return &copied
}

// BatchResult is returned for each processed batch.
type BatchResult struct {
	SessionID      string        `json:"sessionId"`
	BatchNumber    int           `json:"batchNumber"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	Errors         []IngestError `json:"errors,omitempty"`
	SessionStatus  Status        `json:"sessionStatus"`
	TotalProcessed int           `json:"totalProcessed"`
	TotalFailed    int           `json:"totalFailed"`
	Progress       *float64      `json:"progress,omitempty"`
}
