// Package webhooks serves the Slack Events API endpoint.
//
// Requests are verified against the signing secret, acknowledged right away,
// and handed to an EventSink that routes them after the response is written.
// url_verification challenges are echoed without signature checks.
package webhooks
