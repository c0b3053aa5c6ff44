// Package pagination drives cursor-paginated collection endpoints.
//
// The API returns at most one page of records per call plus an optional
// meta.next_token cursor. A Collector requests page 0 without a cursor and
// then follows cursors until one of these happens:
//   - the configured page cap is reached
//   - a page carries no cursor
//   - a later page carries no data
//   - the API reports the account-level usage cap (returned as an error)
//
// Every response is reported to an Observer (the session's rate-limit
// tracker) before its records are classified. Pages are concatenated in
// arrival order into one table, and object-valued metrics columns are
// expanded into top-level columns afterwards.
//
// Example usage:
//
//	collector := pagination.NewCollector(session, session.Limits(), baseURL, logger)
//	result, err := collector.Collect(ctx, client.UserTweetsEndpoint, userID, pagination.Config{MaxPages: 3})
//
// Requests run one at a time. With Config.Throttle set, the collector waits
// one rate-limit epoch between requests.
package pagination
