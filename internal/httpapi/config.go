package httpapi

// defaultMaxBodyBytes bounds JSON request bodies. Inline init images and masks
// arrive as data URIs, so the default is 16 MiB.
const defaultMaxBodyBytes int64 = 16 << 20

var (
	maxBodyBytes = defaultMaxBodyBytes
	// generateTimeout bounds one /generate request in seconds; 0 disables it.
	generateTimeout int64
)

// SetMaxBodyBytes sets the JSON body limit; n <= 0 restores the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

// SetGenerateTimeoutSeconds bounds each generation; 0 or less disables it.
func SetGenerateTimeoutSeconds(sec int64) {
	generateTimeout = max(sec, 0)
}

// corsSettings is opt-in; NewMux adds no CORS middleware unless enabled.
type corsSettings struct {
	enabled bool
	origins []string
	methods []string
	headers []string
}

var corsCfg corsSettings

// SetCORSOptions configures CORS for routers built afterwards. Empty lists
// fall back to permissive defaults when enabled.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsCfg = corsSettings{
		enabled: enabled,
		origins: append([]string(nil), origins...),
		methods: append([]string(nil), methods...),
		headers: append([]string(nil), headers...),
	}
}
