// Package triage provides the business boundary for triagedesk. Service ties
// the alert collection, the report store, the assist queue and the escalation
// notifier together and is what the HTTP layer calls.
package triage
