package types

// Version is the ascent release version.
// Kept in sync with the release tag by the release workflow.
const Version = "0.4.1"
