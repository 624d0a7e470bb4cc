package dto

import (
	"time"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// BatchResponse representación JSON de un lote de remisión.
type BatchResponse struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	Status          string     `json:"status"`
	TotalRecords    int        `json:"total_records"`
	AcceptedRecords int        `json:"accepted_records"`
	RejectedRecords int        `json:"rejected_records"`
	AEATEnvironment string     `json:"aeat_environment"`
	CSV             string     `json:"csv,omitempty"`
	RetryCount      int        `json:"retry_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	ResponseAt      *time.Time `json:"response_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// FromBatch serializa la entidad para la API.
func FromBatch(b *entity.RemisionBatch) BatchResponse {
	return BatchResponse{
		ID:              b.ID,
		TenantID:        b.TenantID,
		Status:          b.Status,
		TotalRecords:    b.TotalRecords,
		AcceptedRecords: b.AcceptedRecords,
		RejectedRecords: b.RejectedRecords,
		AEATEnvironment: b.AEATEnvironment,
		CSV:             b.CSV,
		RetryCount:      b.RetryCount,
		ErrorMessage:    b.ErrorMessage,
		SentAt:          b.SentAt,
		ResponseAt:      b.ResponseAt,
		CreatedAt:       b.CreatedAt,
	}
}

// QueueStatusResponse profundidad de la cola de remisión.
type QueueStatusResponse struct {
	PendingRecords int `json:"pending_records"`
}
