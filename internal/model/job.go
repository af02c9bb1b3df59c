package model

import "time"

// Operation represents one caller-issued generation tracked by the service
type Operation struct {
	ID            string         `json:"operationId"`
	Model         string         `json:"model"`
	Status        JobStatus      `json:"status"`
	Units         []UnitProgress `json:"units"`
	Artifacts     []Artifact     `json:"artifacts,omitempty"`
	MirrorURLs    []string       `json:"mirrorUrls,omitempty"`
	MirrorKeys    []string       `json:"-"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	Error         *string        `json:"error,omitempty"`
	EstimatedCost float64        `json:"estimatedCost"`
	ReportedCost  *float64       `json:"reportedCost,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

// UnitProgress is the last observed progress of one fan-out unit
type UnitProgress struct {
	Index     int       `json:"index"`
	JobID     JobHandle `json:"jobId,omitempty"`
	Phase     string    `json:"phase"`
	ElapsedMs int64     `json:"elapsedMs"`
	Cost      *float64  `json:"cost,omitempty"`
}

// TotalReportedCost sums the costs reported by units, nil if none reported.
func (o *Operation) TotalReportedCost() *float64 {
	var total float64
	seen := false
	for _, u := range o.Units {
		if u.Cost != nil {
			total += *u.Cost
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &total
}
