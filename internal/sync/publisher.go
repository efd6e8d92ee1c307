package sync

import (
	"github.com/akhilaminc/bankfeed/internal/models"
	"github.com/sirupsen/logrus"
)

// Publisher receives in-flight sync progress. Delivery is best-effort and
// never blocks or fails the sync itself.
type Publisher interface {
	Publish(event *models.ProgressEvent)
}

// LogPublisher emits progress events as structured log lines
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(event *models.ProgressEvent) {
	if event == nil {
		return
	}
	p.logger.WithFields(logrus.Fields{
		"provider":  event.Provider,
		"status":    event.Status,
		"processed": event.Processed,
		"total":     event.Total,
		"progress":  event.Progress,
	}).Debug("Sync progress")
}
