package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var promHandler = promhttp.Handler().ServeHTTP
