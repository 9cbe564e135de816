package types

// Version is the canonical project version.
// The CLI, the HTTP server, and the notification event payload all report
// this constant; components are versioned in lockstep.
const Version = "0.2.0"
