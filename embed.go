package ssechat

import _ "embed"

// DefaultConfig is the configuration file shipped with the binary. It documents every setting and is
// decoded before the user's own configuration, so any key the user leaves out keeps this value.
//
//go:embed config.example.yaml
var DefaultConfig []byte
