// internal/audit/elasticsearch.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"followup-engine/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

// ESSink indexes audit entries into Elasticsearch. Index failures are logged
// and swallowed.
type ESSink struct {
	es     *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewESSink(es *elasticsearch.Client, index string, log logger.Logger) *ESSink {
	return &ESSink{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "audit-sink"}),
	}
}

func (s *ESSink) Record(ctx context.Context, e Entry) {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("audit entry marshal failed", map[string]interface{}{
			"entityType": e.EntityType,
			"entityId":   e.EntityID,
			"error":      err.Error(),
		})
		return
	}

	res, err := s.es.Index(
		s.index,
		bytes.NewReader(body),
		s.es.Index.WithContext(ctx),
		s.es.Index.WithDocumentID(uuid.New().String()),
	)
	if err != nil {
		s.logger.Warn("audit index failed", map[string]interface{}{
			"entityType": e.EntityType,
			"entityId":   e.EntityID,
			"error":      err.Error(),
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		s.logger.Warn("audit index rejected", map[string]interface{}{
			"entityType": e.EntityType,
			"entityId":   e.EntityID,
			"status":     res.Status(),
		})
	}
}
