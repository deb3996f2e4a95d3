package types

// Version is the canonical project version.
// The CLI, the report format and the completion event share this version
// per the lockstep versioning policy.
const Version = "0.4.0"

// ContractVersion is stamped on run reports and completion events.
// It always equals Version.
const ContractVersion = Version
