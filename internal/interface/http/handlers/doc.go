// Package handlers contains health checking and reusable middleware for the
// study buddy HTTP API.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout. Critical checks
// decide readiness; non-critical ones only mark the service as degraded:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(db), true)
//	checker.AddCheck("redis", handlers.NewPingCheck(cache), false)
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//	    log.Warn("not ready", logger.String("reason", status.Message))
//	}
//
// # Middleware
//
// SecurityHeadersMiddleware and RequestSizeLimitMiddleware are plain
// func(http.Handler) http.Handler values and plug into any chi router:
//
//	r.Use(handlers.SecurityHeadersMiddleware)
//	r.Use(handlers.RequestSizeLimitMiddleware(1 << 20))
package handlers
