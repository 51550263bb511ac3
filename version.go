package headless

import _ "embed"

// Version is the SDK version reported in the CHAT_HEADLESS clientSdk entry.
//
//go:embed VERSION
var Version string
