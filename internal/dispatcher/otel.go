package dispatcher

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/jangxx/UniversalTrackerMarkers/internal/dispatcher"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
