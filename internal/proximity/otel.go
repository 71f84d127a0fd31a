package proximity

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/jangxx/UniversalTrackerMarkers/internal/proximity"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
