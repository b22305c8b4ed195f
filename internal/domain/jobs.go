package domain

import (
	"context"
	"time"
)

// DeliveryCause описывает источник задачи доставки.
type DeliveryCause string

const (
	// DeliveryCauseImmediate — письмо по немедленному уведомлению.
	DeliveryCauseImmediate DeliveryCause = "immediate"
	// DeliveryCauseSummary — письмо по сводке отложенных уведомлений.
	DeliveryCauseSummary DeliveryCause = "summary"
)

// DeliveryJob содержит всё необходимое воркеру для отправки письма.
type DeliveryJob struct {
	ID             string        `json:"job_id"`
	NotificationID int64         `json:"notification_id"`
	RecipientID    int64         `json:"recipient_id"`
	Email          string        `json:"email"`
	Kind           Kind          `json:"kind"`
	Title          string        `json:"title"`
	Message        string        `json:"message"`
	Cause          DeliveryCause `json:"cause"`
	RequestedAt    time.Time     `json:"requested_at"`
}

// DeliveryAckFunc подтверждает обработку задачи или запрашивает её
// повторную доставку.
type DeliveryAckFunc func(success bool) error

// DeliveryQueue описывает очередь задач на отправку писем.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, job DeliveryJob) error
	Receive(ctx context.Context) (DeliveryJob, DeliveryAckFunc, error)
}
