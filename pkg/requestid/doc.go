// Package requestid tags every HTTP request with an ID that is echoed in
// the X-Request-ID response header and attached to log records through
// LoggerExtractor.
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r.Use(requestid.Middleware)
package requestid
