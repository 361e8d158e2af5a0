package units

import (
	"fmt"

	"github.com/evergreen-ci/rowan"
	"go.opentelemetry.io/otel"
)

var packageName = fmt.Sprintf("%s%s", rowan.PackageName, "/units")

var tracer = otel.GetTracerProvider().Tracer(packageName)
