// Package dedupe suppresses repeated events inside a sliding time window.
//
// The analytics service uses it to count a member's page view once per
// window no matter how often the page is re-rendered.
package dedupe
