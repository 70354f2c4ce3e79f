package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/canteen-orderflow/internal/events"
)

const transitionsMetric = "OrderTransitions"

// Metrics counts lifecycle transitions in CloudWatch, one datapoint per event.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
}

func NewMetrics(cw CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{CloudWatch: cw, Namespace: namespace}
}

// Notify records the event as a count under the EventType dimension.
func (m *Metrics) Notify(ctx context.Context, e events.Event) error {
	ts := e.OccurredAt
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.Namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(transitionsMetric),
				Dimensions: []cwtypes.Dimension{
					{Name: awsString("EventType"), Value: awsString(e.Type)},
				},
				Timestamp: &ts,
				Unit:      cwtypes.StandardUnitCount,
				Value:     awsFloat(1),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func awsFloat(f float64) *float64 { return &f }
