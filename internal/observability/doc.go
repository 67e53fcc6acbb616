// Package observability records flow's task events in a JSON Lines log and
// derives metrics and alerts from it on demand. Alerts can be pushed to a
// Slack incoming webhook.
package observability
