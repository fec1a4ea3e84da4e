// Package handlers contains HTTP handler interfaces, implementations, and middleware.
//
// This package provides:
//   - Health check interfaces and implementations
//   - Fact ingestion for hosts that cannot publish to redis
//   - Authentication middleware
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel. Degraded checks leave the service ready:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.NewDatabaseCheck(db))
//	checker.AddDegradedCheck("redis", handlers.NewCacheCheck(cache))
//	checker.AddDegradedCheck("fact_source", handlers.NewBreakerCheck(source.Breaker()))
//
//	status := checker.Check(ctx)
//
// # Fact Ingestion
//
// FactWebhook decodes a FactRecorded payload and publishes it on the event
// bus, where the incremental evaluation handler picks it up:
//
//	webhook := handlers.NewFactWebhook(bus)
//	event, err := webhook.HandleFact(ctx, payload)
package handlers
