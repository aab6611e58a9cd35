package worker

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
)

// HandleSQSEvent processes a Lambda SQS batch. Records whose pipeline run
// failed are reported back as batch item failures so SQS redelivers only
// those; the event source mapping must enable ReportBatchItemFailures.
func (w *Worker) HandleSQSEvent(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		if err := w.process(ctx, record.MessageId, record.Body); errors.Is(err, errRetry) {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp, nil
}
