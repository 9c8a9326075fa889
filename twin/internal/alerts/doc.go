// Package alerts evaluates threshold rules against each aging evaluation and
// notifies webhooks (Slack, Teams, plain HTTP) when a rule fires or resolves.
// The typical rule is an end-of-life threshold such as "capacity < 0.8".
package alerts
