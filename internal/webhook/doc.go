// Package webhook receives form-service deliveries over HTTP.
//
// Each form has its own endpoint:
//
//	POST /webhooks/application
//	POST /webhooks/general-competencies
//	POST /webhooks/specialized-competencies
//	POST /webhooks/agreement
//
// # Request Flow
//
//  1. Client IP resolved from X-Forwarded-For, X-Real-IP or CF-Connecting-IP
//  2. Rate limit checked per IP (429, nothing else happens)
//  3. Body read up to max_body_size (413 beyond it)
//  4. Source IP and shared secret verified (401, reason only in the log)
//  5. JSON decoded and data.submissionId / data.fields checked (400)
//  6. Handed to the candidate service, which extracts, claims the
//     submission id and applies the pipeline in one transaction
//  7. 200 {"success":true,"data":{...}} with the resulting stage and status
//
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset are set on
// every webhook response. A replayed submission id gets the first delivery's
// response again.
//
// # Error Responses
//
//   - 400: malformed JSON, missing structure, missing field, refused transition
//   - 401: verification failed (body is always {"error":"unauthorized"})
//   - 404: referenced person or application unknown
//   - 413: body too large
//   - 429: rate limited
//   - 500: anything else; details only in the log
//
// # Example Usage
//
//	cfg, verifier, err := webhook.FromGlobalConfig(globalCfg)
//	if err != nil {
//		return err
//	}
//	server := webhook.New(cfg, verifier, limiter, service, logger)
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
