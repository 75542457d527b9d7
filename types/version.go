package types

// Version is the canonical client version.
// The CLI, the request layer and the decoder share this version.
const Version = "0.3.0"

// FrameVersion is the only record frame version the decoder accepts.
const FrameVersion = 2
